// Package sink provides supervisor.Sink implementations.
//
//   - SQLite stores readings in the angelzzz table of a local database.
//   - NATS publishes readings as JSON on a subject.
//   - GzipCSV appends readings to a gzip-compressed CSV file.
//   - Log writes readings to a logger.
//   - Fanout records each reading to several named sinks.
package sink
