package sink

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/arloliu/go-beddit/supervisor"
)

// GzipCSV appends readings as "unix_ts,channel1,channel2" rows to a gzip
// file. The channel columns hold the per-frame channel averages carried by
// Reading, not the first raw sample of each channel. Every row is flushed
// through to the file so a crash loses at most the row being written.
type GzipCSV struct {
	mu sync.Mutex
	f  *os.File
	gz *gzip.Writer
	w  *csv.Writer
}

var _ supervisor.Sink = (*GzipCSV)(nil)

// CreateGzipCSV creates or truncates the file at path.
func CreateGzipCSV(path string) (*GzipCSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create csv: %w", err)
	}

	gz := gzip.NewWriter(f)

	return &GzipCSV{f: f, gz: gz, w: csv.NewWriter(gz)}, nil
}

// Record writes and flushes one row.
func (c *GzipCSV) Record(_ context.Context, r supervisor.Reading) error {
	row := []string{
		strconv.FormatFloat(unixSeconds(r.Time), 'f', 6, 64),
		strconv.FormatFloat(r.Channel1, 'f', -1, 64),
		strconv.FormatFloat(r.Channel2, 'f', -1, 64),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("sink: write csv row: %w", err)
	}

	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("sink: flush csv: %w", err)
	}

	if err := c.gz.Flush(); err != nil {
		return fmt.Errorf("sink: flush gzip: %w", err)
	}

	return nil
}

// Close finishes the gzip stream and closes the file.
func (c *GzipCSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.w.Flush()

	return errors.Join(c.w.Error(), c.gz.Close(), c.f.Close())
}
