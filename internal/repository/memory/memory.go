// Package memory implements the repository interfaces in process memory.
// Row-locking operations hold a per-row mutex for their whole duration, so
// they serialise the same way the Postgres implementations do.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wanpark/access-server-go/internal/model"
	"github.com/wanpark/access-server-go/internal/repository"
)

var (
	_ repository.CredentialRepository  = (*CredentialStore)(nil)
	_ repository.InviteRepository      = (*InviteStore)(nil)
	_ repository.EntitlementRepository = (*Entitlements)(nil)
	_ repository.ReservationRepository = (*Reservations)(nil)
	_ repository.StaffRepository       = (*Staff)(nil)
	_ repository.VaccinationRepository = (*Vaccinations)(nil)
)

type rowLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (r *rowLocks) get(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks == nil {
		r.locks = make(map[string]*sync.Mutex)
	}
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

type CredentialStore struct {
	mu   sync.Mutex
	rows map[string]*model.Credential
	// Row locks are held by Consume for the lifetime of the callback.
	locks rowLocks
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{rows: make(map[string]*model.Credential)}
}

// Replace serialises on the (lock, purpose, holder) key like the advisory
// lock in Postgres, and waits for the row lock of every credential it
// invalidates, so it queues behind an in-flight Consume.
func (s *CredentialStore) Replace(_ context.Context, p model.CreateCredentialParams) (*model.Credential, error) {
	key := strings.Join([]string{"replace", p.LockID, string(p.Purpose), p.IssuedTo}, "|")
	tuple := s.locks.get(key)
	tuple.Lock()
	defer tuple.Unlock()

	s.mu.Lock()
	var prior []string
	for id, c := range s.rows {
		if c.InvalidatedAt == nil && c.LockID == p.LockID && c.Purpose == p.Purpose && c.IssuedTo == p.IssuedTo {
			prior = append(prior, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(prior)
	for _, id := range prior {
		row := s.locks.get(id)
		row.Lock()
		defer row.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.rows {
		if c.InvalidatedAt != nil || c.LockID != p.LockID || c.Purpose != p.Purpose {
			continue
		}
		if c.IssuedTo != p.IssuedTo && c.Code == p.Code && c.ConsumedAt == nil && !c.IsExpired(p.IssuedAt) {
			return nil, repository.ErrCodeCollision
		}
	}

	at := p.IssuedAt
	for _, id := range prior {
		s.rows[id].InvalidatedAt = &at
	}

	c := &model.Credential{
		ID:             p.ID,
		Code:           p.Code,
		LockID:         p.LockID,
		FacilityID:     p.FacilityID,
		Purpose:        p.Purpose,
		IssuedTo:       p.IssuedTo,
		ReservationRef: p.ReservationRef,
		IssuedAt:       p.IssuedAt,
		ExpiresAt:      p.ExpiresAt,
	}
	s.rows[c.ID] = c
	out := *c
	return &out, nil
}

func (s *CredentialStore) FindByCode(_ context.Context, lockID string, purpose model.Purpose, code string, now time.Time) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*model.Credential
	for _, c := range s.rows {
		if c.InvalidatedAt == nil && c.LockID == lockID && c.Purpose == purpose && c.Code == code {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		ei, ej := !matches[i].IsExpired(now), !matches[j].IsExpired(now)
		if ei != ej {
			return ei
		}
		return matches[i].IssuedAt.After(matches[j].IssuedAt)
	})
	out := *matches[0]
	return &out, nil
}

func (s *CredentialStore) Consume(_ context.Context, id string, at time.Time, fn func(*model.Credential) error) (*model.Credential, error) {
	row := s.locks.get(id)
	row.Lock()
	defer row.Unlock()

	s.mu.Lock()
	stored, ok := s.rows[id]
	var snapshot model.Credential
	if ok {
		snapshot = *stored
	}
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}

	if err := fn(&snapshot); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored.ConsumedAt = &at
	out := *stored
	return &out, nil
}

func (s *CredentialStore) ConsumeByCode(_ context.Context, lockID, code string, at time.Time) (*model.Credential, error) {
	for {
		s.mu.Lock()
		var newest *model.Credential
		for _, c := range s.rows {
			if !consumableAt(c, lockID, code, at) {
				continue
			}
			if newest == nil || c.IssuedAt.After(newest.IssuedAt) {
				newest = c
			}
		}
		s.mu.Unlock()
		if newest == nil {
			return nil, nil
		}

		row := s.locks.get(newest.ID)
		row.Lock()
		s.mu.Lock()
		stored, ok := s.rows[newest.ID]
		if !ok || !consumableAt(stored, lockID, code, at) {
			// Lost the row to a concurrent consume or replace; look again.
			s.mu.Unlock()
			row.Unlock()
			continue
		}
		stored.ConsumedAt = &at
		out := *stored
		s.mu.Unlock()
		row.Unlock()
		return &out, nil
	}
}

func consumableAt(c *model.Credential, lockID, code string, at time.Time) bool {
	return c.LockID == lockID && c.Code == code &&
		c.InvalidatedAt == nil && c.ConsumedAt == nil && !c.IsExpired(at)
}

func (s *CredentialStore) DeleteInert(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.rows {
		if c.ExpiresAt.Before(before) ||
			(c.ConsumedAt != nil && c.ConsumedAt.Before(before)) ||
			(c.InvalidatedAt != nil && c.InvalidatedAt.Before(before)) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// All returns a copy of every stored credential.
func (s *CredentialStore) All() []model.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Credential, 0, len(s.rows))
	for _, c := range s.rows {
		out = append(out, *c)
	}
	return out
}

type InviteStore struct {
	mu          sync.Mutex
	byToken     map[string]*model.InviteToken
	redemptions []model.InviteRedemption
	locks       rowLocks
}

func NewInviteStore() *InviteStore {
	return &InviteStore{byToken: make(map[string]*model.InviteToken)}
}

func (s *InviteStore) Create(_ context.Context, p model.CreateInviteParams) (*model.InviteToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv := &model.InviteToken{
		ID:             p.ID,
		Token:          p.Token,
		HostIdentity:   p.HostIdentity,
		FacilityID:     p.FacilityID,
		ReservationRef: p.ReservationRef,
		WindowStart:    p.WindowStart,
		WindowEnd:      p.WindowEnd,
		MaxUses:        p.MaxUses,
		CreatedAt:      p.CreatedAt,
	}
	s.byToken[inv.Token] = inv
	out := *inv
	return &out, nil
}

func (s *InviteStore) FindByToken(_ context.Context, token string) (*model.InviteToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.byToken[token]
	if !ok {
		return nil, nil
	}
	out := *inv
	return &out, nil
}

func (s *InviteStore) Redeem(_ context.Context, token string, fn repository.RedeemFunc) (*model.InviteToken, error) {
	row := s.locks.get(token)
	row.Lock()
	defer row.Unlock()

	s.mu.Lock()
	stored, ok := s.byToken[token]
	var snapshot model.InviteToken
	if ok {
		snapshot = *stored
	}
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}

	redemption, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored.UsedCount++
	redemption.InviteID = stored.ID
	s.redemptions = append(s.redemptions, redemption)
	out := *stored
	return &out, nil
}

func (s *InviteStore) Revoke(_ context.Context, token, hostIdentity string, at time.Time) (*model.InviteToken, error) {
	row := s.locks.get(token)
	row.Lock()
	defer row.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if inv.HostIdentity != hostIdentity {
		return nil, repository.ErrNotOwner
	}
	inv.Revoked = true
	if inv.RevokedAt == nil {
		inv.RevokedAt = &at
	}
	out := *inv
	return &out, nil
}

func (s *InviteStore) DeleteInert(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for token, inv := range s.byToken {
		if inv.WindowEnd.Before(before) || (inv.RevokedAt != nil && inv.RevokedAt.Before(before)) {
			delete(s.byToken, token)
			n++
		}
	}
	return n, nil
}

// Redemptions returns a copy of the redemption log.
func (s *InviteStore) Redemptions() []model.InviteRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.InviteRedemption, len(s.redemptions))
	copy(out, s.redemptions)
	return out
}

// Entitlements serves a fixed fact per identity.
type Entitlements struct {
	mu    sync.Mutex
	facts map[string]model.EntitlementFact
	Err   error
}

func NewEntitlements() *Entitlements {
	return &Entitlements{facts: make(map[string]model.EntitlementFact)}
}

func (e *Entitlements) Set(identity string, fact model.EntitlementFact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facts[identity] = fact
}

func (e *Entitlements) GetEntitlement(_ context.Context, identity, _ string) (model.EntitlementFact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return model.EntitlementFact{}, e.Err
	}
	fact, ok := e.facts[identity]
	if !ok {
		return model.NoEntitlement(), nil
	}
	return fact, nil
}

type Reservations struct {
	mu   sync.Mutex
	byID map[string]model.Reservation
}

func NewReservations() *Reservations {
	return &Reservations{byID: make(map[string]model.Reservation)}
}

func (r *Reservations) Put(res model.Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[res.ID] = res
}

func (r *Reservations) GetReservation(_ context.Context, ref string) (*model.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[ref]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

type Staff struct {
	mu      sync.Mutex
	members map[string]bool
}

func NewStaff() *Staff {
	return &Staff{members: make(map[string]bool)}
}

func (s *Staff) Add(facilityID, identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[facilityID+"|"+identity] = true
}

func (s *Staff) IsOwnerOrStaff(_ context.Context, identity, facilityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[facilityID+"|"+identity], nil
}

type Vaccinations struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func NewVaccinations() *Vaccinations {
	return &Vaccinations{until: make(map[string]time.Time)}
}

func (v *Vaccinations) Approve(identity string, until time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.until[identity] = until
}

func (v *Vaccinations) HasApprovedVaccination(_ context.Context, identity string, at time.Time) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	until, ok := v.until[identity]
	return ok && !until.Before(at), nil
}
