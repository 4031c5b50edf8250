package store

import (
	"github.com/ValentinKolb/hkv/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
)

// Option configures a store created by New.
type Option func(*options)

type options struct {
	normalKeys bool
	locker     lockmgr.ILockManager
	log        logger.ILogger
}

func defaultOptions() *options {
	return &options{
		log: logger.GetLogger("store"),
	}
}

// WithNormalKeys disables dotted key resolution: every key addresses a row.
func WithNormalKeys() Option {
	return func(o *options) { o.normalKeys = true }
}

// WithKeyLocking serializes mutations of the same root key within this
// process. All views created from the store share the locks.
//
// Without it mutations are read-modify-write without coordination and
// concurrent writers to the same key race (the last write wins).
func WithKeyLocking() Option {
	return WithLockManager(lockmgr.NewKeyLocker())
}

// WithLockManager is like WithKeyLocking with a caller supplied lock manager.
func WithLockManager(lm lockmgr.ILockManager) Option {
	return func(o *options) { o.locker = lm }
}

// WithLogger replaces the default "store" logger.
func WithLogger(l logger.ILogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
