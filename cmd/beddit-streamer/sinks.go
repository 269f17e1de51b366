package main

import (
	"context"
	"errors"

	"github.com/arloliu/go-beddit/config"
	"github.com/arloliu/go-beddit/logger"
	"github.com/arloliu/go-beddit/sink"
)

// buildSinks opens every configured sink. Without any configured sink
// readings go to the log.
func buildSinks(ctx context.Context, cfg config.Config, log logger.Logger) (*sink.Fanout, error) {
	fanout := sink.NewFanout()

	fail := func(err error) (*sink.Fanout, error) {
		return nil, errors.Join(err, fanout.Close())
	}

	if cfg.Sinks.SQLitePath != "" {
		s, err := sink.OpenSQLite(ctx, cfg.Sinks.SQLitePath)
		if err != nil {
			return fail(err)
		}
		fanout.Add("sqlite", s)
	}

	if cfg.Sinks.CSVPath != "" {
		s, err := sink.CreateGzipCSV(cfg.Sinks.CSVPath)
		if err != nil {
			return fail(err)
		}
		fanout.Add("csv", s)
	}

	if cfg.Sinks.NATSURL != "" {
		s, err := sink.ConnectNATS(cfg.Sinks.NATSURL, cfg.Sinks.NATSSubject, log)
		if err != nil {
			return fail(err)
		}
		fanout.Add("nats", s)
	}

	if cfg.Sinks.Log || len(fanout.Names()) == 0 {
		fanout.Add("log", sink.NewLog(log))
	}

	return fanout, nil
}
