package main

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/backends/instrumented"
	"github.com/ebogdum/flystream/backends/localfs"
	"github.com/ebogdum/flystream/backends/noop"
	"github.com/ebogdum/flystream/backends/s3"
	"github.com/ebogdum/flystream/backends/sqlfs"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/locks"
)

// bridge bundles the wrapper with the resources that must be released on exit
type bridge struct {
	*core.Wrapper
	locks *locks.Factory
}

func (b *bridge) Close() error {
	return errors.Join(b.Registry().Close(), b.locks.Close())
}

// newBridge builds an operator for every configured scheme and registers it
func newBridge(cfg config.AppConfig, logger *zap.Logger) (*bridge, error) {
	registry := core.NewRegistry()

	names := make([]string, 0, len(cfg.Schemes))
	for name := range cfg.Schemes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sc := cfg.Schemes[name]

		opts, err := core.OptionsFromConfig(sc)
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("scheme %s: %w", name, err)
		}

		op, err := newOperator(sc, opts.Permissions, logger)
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("scheme %s: %w", name, err)
		}

		if err := registry.Register(name, instrumented.Wrap(name, op), opts); err != nil {
			op.Close()
			registry.Close()
			return nil, err
		}

		logger.Info("Scheme registered",
			zap.String("scheme", name),
			zap.String("backend", sc.Backend),
			zap.String("lock_store", opts.LockStore))
	}

	var wrapperOpts []core.Option
	if cfg.Locks.PollInterval > 0 {
		wrapperOpts = append(wrapperOpts, core.WithLockPollInterval(cfg.Locks.PollInterval))
	}

	factory := locks.NewFactory(logger)
	wrapper := core.NewWrapper(registry, factory, logger, wrapperOpts...)

	return &bridge{Wrapper: wrapper, locks: factory}, nil
}

// newOperator creates the operator of one scheme configuration
func newOperator(sc config.SchemeConfig, perms backends.PortableVisibility, logger *zap.Logger) (backends.Operator, error) {
	switch sc.Backend {
	case "localfs":
		return localfs.NewLocalFSAdapter(sc.LocalFSRootPath, perms)
	case "s3":
		return s3.NewS3Adapter(sc, logger)
	case "sqlfs":
		return sqlfs.NewSQLAdapter(sc.SQLDriver, sc.SQLDSN, perms.DefaultForDirectories, logger)
	case "noop":
		return noop.NewNoopAdapter(sc.Backend), nil
	}
	return nil, fmt.Errorf("unsupported backend %q", sc.Backend)
}
