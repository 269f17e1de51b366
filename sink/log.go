package sink

import (
	"context"

	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/supervisor"
)

// Log writes every reading to a logger at info level.
type Log struct {
	logger logger.Logger
}

var _ supervisor.Sink = (*Log)(nil)

// NewLog returns a Log sink. A nil logger uses the package default.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Log{logger: l}
}

func (s *Log) Record(_ context.Context, r supervisor.Reading) error {
	s.logger.Info("reading",
		"time", r.Time,
		"source", r.Source,
		"packet", r.PacketNumber,
		"channel1", r.Channel1,
		"channel2", r.Channel2,
	)

	return nil
}
