package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wanpark/access-server-go/internal/entitlement"
	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/lock"
	"github.com/wanpark/access-server-go/internal/metrics"
	"github.com/wanpark/access-server-go/internal/model"
	"github.com/wanpark/access-server-go/internal/repository/memory"
	"github.com/wanpark/access-server-go/internal/window"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeLock fails the first `fail` actuations. When gate is set, each call
// signals entered and then waits for gate to be closed.
type fakeLock struct {
	mu      sync.Mutex
	fail    int
	calls   []string
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeLock) Actuate(ctx context.Context, lockID string, purpose model.Purpose) error {
	f.mu.Lock()
	f.calls = append(f.calls, lockID+"/"+string(purpose))
	failing := f.fail > 0
	if failing {
		f.fail--
	}
	entered, gate := f.entered, f.gate
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if failing {
		return &lock.HardwareError{LockID: lockID, Driver: "fake", Err: errors.New("bolt jammed")}
	}
	return nil
}

func (f *fakeLock) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLock) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = n
}

type fixture struct {
	clock        *clock
	credentials  *memory.CredentialStore
	invites      *memory.InviteStore
	entitlements *memory.Entitlements
	reservations *memory.Reservations
	staff        *memory.Staff
	vaccinations *memory.Vaccinations
	hardware     *fakeLock
	metrics      *metrics.Registry
	registry     *lock.Registry

	creds   *CredentialService
	invitee *InviteService
}

func disabled() *bool {
	b := false
	return &b
}

func newFixture(t *testing.T, vaccinationGated bool) *fixture {
	t.Helper()

	registry, err := lock.NewRegistry(
		lock.Lock{ID: "F-gate", FacilityID: "F", Purposes: []model.Purpose{model.PurposeEntry, model.PurposeExit}, Driver: lock.DriverLog, TTLockID: 7001},
		lock.Lock{ID: "F-side", FacilityID: "F", Purposes: []model.Purpose{model.PurposeEntry}, PINEnabled: disabled(), Driver: lock.DriverLog},
		lock.Lock{ID: "G-entry", FacilityID: "G", Purposes: []model.Purpose{model.PurposeEntry}, Driver: lock.DriverLog},
	)
	require.NoError(t, err)

	f := &fixture{
		clock:        &clock{now: t0},
		credentials:  memory.NewCredentialStore(),
		invites:      memory.NewInviteStore(),
		entitlements: memory.NewEntitlements(),
		reservations: memory.NewReservations(),
		staff:        memory.NewStaff(),
		vaccinations: memory.NewVaccinations(),
		hardware:     &fakeLock{},
		metrics:      metrics.New(),
		registry:     registry,
	}

	var vaccinations entitlement.VaccinationSource
	if vaccinationGated {
		vaccinations = f.vaccinations
	}
	gate := entitlement.NewGate(f.entitlements, f.staff, vaccinations).WithClock(f.clock.Now)
	windows := window.NewResolver(f.reservations, 5*time.Minute, time.UTC).WithClock(f.clock.Now)
	controller := lock.NewRetrying(f.hardware, 3, 0, f.metrics)

	f.creds = NewCredentialService(f.credentials, registry, gate, windows, controller, f.metrics).WithClock(f.clock.Now)
	f.invitee = NewInviteService(f.invites, registry, windows, controller, f.metrics, "https://park.example/invite/").WithClock(f.clock.Now)
	return f
}

func (f *fixture) dayPass(identity string, facilities ...string) {
	until := f.clock.Now().Add(12 * time.Hour)
	f.entitlements.Set(identity, model.EntitlementFact{
		Kind:          model.EntitlementActiveDayPass,
		ValidUntil:    &until,
		FacilityScope: facilities,
	})
}

// rental books F from 09:00 to 13:00 on the fixture day.
func (f *fixture) rental(id, holder string) {
	f.reservations.Put(model.Reservation{
		ID:             id,
		FacilityID:     "F",
		HolderIdentity: holder,
		Type:           model.ReservationTypeWholeFacility,
		Date:           "2026-05-01",
		StartTime:      "09:00",
		DurationHours:  4,
		Status:         model.ReservationStatusConfirmed,
	})
}

// codes makes the issuer hand out the given codes in order.
func (f *fixture) codes(codes ...string) {
	var mu sync.Mutex
	f.creds.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return "", errors.New("no more codes")
		}
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperrors.GetCode(err), err.Error())
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
