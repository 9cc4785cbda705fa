package lock

import (
	"errors"
	"fmt"

	"github.com/wanpark/access-server-go/internal/metrics"
)

// StrikeOpener binds a strike to a GPIO pin. OpenStrike in production.
type StrikeOpener func(pin string, l Lock) (*Strike, error)

type BuildOptions struct {
	TTLock     *TTLockClient
	OpenStrike StrikeOpener
	Metrics    *metrics.Registry
}

// Build creates a Router with a driver for every lock in the registry. The
// returned close function re-locks every strike.
func Build(reg *Registry, opts BuildOptions) (*Router, func() error, error) {
	if opts.OpenStrike == nil {
		opts.OpenStrike = func(pin string, l Lock) (*Strike, error) {
			return OpenStrike(pin, l.OpenFor, l.ActiveLow)
		}
	}

	router := NewRouter(opts.Metrics)
	strikes := make(map[string]*Strike)
	closeAll := func() error {
		var errs []error
		for _, s := range strikes {
			errs = append(errs, s.Close())
		}
		return errors.Join(errs...)
	}

	for _, l := range reg.Locks() {
		switch l.Driver {
		case DriverLog:
			router.Handle(l.ID, DriverLog, LogDriver{})
		case DriverTTLock:
			if opts.TTLock == nil {
				_ = closeAll()
				return nil, nil, fmt.Errorf("lock %s uses ttlock but TTLOCK_* is not configured", l.ID)
			}
			router.Handle(l.ID, DriverTTLock, TTLockDriver{Client: opts.TTLock, TTLockID: l.TTLockID})
		case DriverStrike:
			s, ok := strikes[l.Pin]
			if !ok {
				var err error
				s, err = opts.OpenStrike(l.Pin, l)
				if err != nil {
					_ = closeAll()
					return nil, nil, fmt.Errorf("lock %s: %w", l.ID, err)
				}
				strikes[l.Pin] = s
			}
			router.Handle(l.ID, DriverStrike, s)
		}
	}
	return router, closeAll, nil
}
