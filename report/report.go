// Package report forwards failed runs to Sentry when a DSN is configured.
package report

import (
	"log/slog"
	"time"

	"amd-helper/models"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Failure is what gets reported about one failed run.
type Failure struct {
	RunID   string
	Engine  string
	Lang    models.Lang
	TextLen int
	Err     error
}

type Reporter struct {
	logger  *slog.Logger
	enabled bool
	capture func(f Failure)
}

// New returns a disabled reporter for an empty dsn.
func New(logger *slog.Logger, dsn, release string) *Reporter {
	r := &Reporter{logger: logger.With("component", "report")}
	if dsn == "" {
		return r
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Release:     release,
		Environment: "desktop",
	})
	if err != nil {
		r.logger.Warn("sentry init failed", "error", err)
		return r
	}
	r.enabled = true
	r.capture = captureSentry
	r.logger.Info("sentry initialized")
	return r
}

func captureSentry(f Failure) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", f.RunID)
		scope.SetTag("engine", f.Engine)
		scope.SetTag("lang", string(f.Lang))
		scope.SetExtra("text_len", f.TextLen)
		sentry.CaptureException(f.Err)
	})
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// Report is a no-op when disabled or when the failure carries no error.
func (r *Reporter) Report(f Failure) {
	if !r.Enabled() || f.Err == nil {
		return
	}
	r.capture(f)
	r.logger.Debug("failure reported", "run", f.RunID)
}

func (r *Reporter) Flush() {
	if !r.Enabled() {
		return
	}
	if !sentry.Flush(flushTimeout) {
		r.logger.Warn("sentry flush timed out")
	}
}
