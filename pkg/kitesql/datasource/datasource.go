/*
Package datasource holds the contracts shared by kitesql datasources. Datasources receive a
Logger and a Metrics implementation from their owner instead of creating their own.
*/
package datasource

import "context"

// Logger is the logging contract datasources write to.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Logf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Metrics is the metrics contract datasources record to.
type Metrics interface {
	NewHistogram(name, desc string, buckets ...float64)
	NewCounter(name, desc string)

	IncrementCounter(ctx context.Context, name string, labels ...string)
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
}
