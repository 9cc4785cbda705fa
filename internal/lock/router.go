package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanpark/access-server-go/internal/metrics"
	"github.com/wanpark/access-server-go/internal/model"
)

// Router dispatches an actuation to the driver configured for the lock.
type Router struct {
	routes  map[string]route
	metrics *metrics.Registry
}

type route struct {
	driver     string
	controller Controller
}

func NewRouter(m *metrics.Registry) *Router {
	return &Router{routes: make(map[string]route), metrics: m}
}

func (r *Router) Handle(lockID, driver string, c Controller) {
	r.routes[lockID] = route{driver: driver, controller: c}
}

func (r *Router) Actuate(ctx context.Context, lockID string, purpose model.Purpose) error {
	rt, ok := r.routes[lockID]
	if !ok {
		return &HardwareError{LockID: lockID, Driver: "none", Err: fmt.Errorf("no driver registered")}
	}

	start := time.Now()
	err := rt.controller.Actuate(ctx, lockID, purpose)
	if r.metrics != nil {
		r.metrics.ActuationLatency.WithLabelValues(rt.driver).Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		r.metrics.Actuations.WithLabelValues(rt.driver, result).Inc()
	}
	if err != nil {
		var hwErr *HardwareError
		if errors.As(err, &hwErr) {
			return err
		}
		return &HardwareError{LockID: lockID, Driver: rt.driver, Err: err}
	}
	return nil
}
