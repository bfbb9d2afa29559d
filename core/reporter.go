package core

import (
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/metrics"
)

// Reporter surfaces failures the way a stream wrapper host would raise a warning.
// The bridge calls it once per reported failure; the error is still returned.
type Reporter interface {
	Report(op string, err error)
}

// ReporterFunc adapts a function to the Reporter interface
type ReporterFunc func(op string, err error)

func (f ReporterFunc) Report(op string, err error) {
	f(op, err)
}

// ZapReporter logs reported failures as warnings and counts them by kind
type ZapReporter struct {
	logger *zap.Logger
}

// NewZapReporter creates a reporter writing to logger
func NewZapReporter(logger *zap.Logger) *ZapReporter {
	return &ZapReporter{logger: logger}
}

func (r *ZapReporter) Report(op string, err error) {
	metrics.StreamErrorsTotal.WithLabelValues(op, KindOf(err).String()).Inc()
	r.logger.Warn(Message(err), zap.String("operation", op))
}
