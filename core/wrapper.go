// Package core maps stream operations on scheme://path URIs onto the filesystem operator
// registered for the scheme.
package core

import (
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/core/log"
	"github.com/ebogdum/flystream/locks"
	"github.com/ebogdum/flystream/metrics"
)

// OpenFlag modifies Open
type OpenFlag int

const (
	// OpenReportErrors reports operator failures during open instead of failing quietly
	OpenReportErrors OpenFlag = 1 << iota
	// OpenUsePath records the opened uri, see Stream.OpenedPath
	OpenUsePath
)

// StatFlag modifies URLStat
type StatFlag int

const (
	// StatLink asks for the link itself; operators have no links so it is ignored
	StatLink StatFlag = 1 << iota
	// StatQuiet suppresses reporting of failures
	StatQuiet
	// StatIgnoreSize skips the size lookup of files
	StatIgnoreSize
)

// DirFlag modifies Mkdir and Rmdir
type DirFlag int

const (
	// DirRecursive creates missing parents on Mkdir and removes contents on Rmdir
	DirRecursive DirFlag = 1 << iota
)

// MetadataOption selects what Metadata changes
type MetadataOption int

const (
	MetaTouch MetadataOption = iota + 1
	MetaOwnerName
	MetaOwner
	MetaGroupName
	MetaGroup
	MetaAccess
)

// LockOp is a flock-style lock operation
type LockOp int

const (
	LockShared      LockOp = 1
	LockExclusive   LockOp = 2
	LockUnlock      LockOp = 3
	LockNonBlocking LockOp = 4
)

var modePattern = regexp.MustCompile(`^[rwacx](\+b?|b\+?)?$`)

// openMode is a decoded fopen mode string
type openMode struct {
	raw  string
	base byte
	plus bool
}

func parseMode(mode string) (openMode, bool) {
	if !modePattern.MatchString(mode) {
		return openMode{}, false
	}
	return openMode{raw: mode, base: mode[0], plus: strings.Contains(mode, "+")}, true
}

// native reports whether the stream reads the operator stream directly
func (m openMode) native() bool {
	return m.base == 'r' && !m.plus
}

// LockProvider hands out the lock manager of a lock store
type LockProvider interface {
	Manager(store string, ttl time.Duration) (locks.Manager, error)
}

// Wrapper is the stream bridge. It is safe for concurrent use; the streams and
// directory handles it returns are not.
type Wrapper struct {
	registry     *Registry
	locks        LockProvider
	reporter     Reporter
	logger       *zap.Logger
	now          func() time.Time
	pollInterval time.Duration
	uid          int
	gid          int
}

// Option configures a Wrapper
type Option func(*Wrapper)

// WithReporter replaces the default zap reporter
func WithReporter(r Reporter) Option {
	return func(w *Wrapper) { w.reporter = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(w *Wrapper) { w.now = now }
}

// WithLockPollInterval sets how often blocking lock requests retry
func WithLockPollInterval(d time.Duration) Option {
	return func(w *Wrapper) { w.pollInterval = d }
}

// NewWrapper creates a bridge over the registered schemes
func NewWrapper(registry *Registry, lockProvider LockProvider, logger *zap.Logger, opts ...Option) *Wrapper {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Wrapper{
		registry:     registry,
		locks:        lockProvider,
		reporter:     NewZapReporter(logger),
		logger:       logger,
		now:          time.Now,
		pollInterval: 50 * time.Millisecond,
		uid:          os.Getuid(),
		gid:          os.Getgid(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Registry returns the scheme registry
func (w *Wrapper) Registry() *Registry {
	return w.registry
}

// resolve looks up the mount of uri; failures are reported
func (w *Wrapper) resolve(op, uri string) (*Mount, string, error) {
	m, path, err := w.registry.Resolve(uri)
	if err != nil {
		return nil, "", w.fail(op, "", err, true)
	}
	return m, path, nil
}

// fail records a failed operation and reports it when asked
func (w *Wrapper) fail(op, scheme string, err error, report bool) error {
	metrics.StreamOperationsTotal.WithLabelValues(op, scheme, "failure").Inc()
	if report {
		w.reporter.Report(op, err)
	}
	return err
}

// succeed records a successful operation
func (w *Wrapper) succeed(op, scheme, uri string) {
	metrics.StreamOperationsTotal.WithLabelValues(op, scheme, "success").Inc()
	w.logger.Debug("Stream operation", zap.String("operation", op), log.Path("uri", uri))
}

