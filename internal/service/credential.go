package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/audit"
	"github.com/wanpark/access-server-go/internal/config"
	"github.com/wanpark/access-server-go/internal/entitlement"
	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/lock"
	"github.com/wanpark/access-server-go/internal/metrics"
	"github.com/wanpark/access-server-go/internal/model"
	"github.com/wanpark/access-server-go/internal/repository"
	"github.com/wanpark/access-server-go/internal/util"
	"github.com/wanpark/access-server-go/internal/window"
)

type IssueRequest struct {
	Identity       string
	LockID         string
	Purpose        model.Purpose
	ReservationRef *string
}

// IssuedCredential is the only place a plaintext code leaves the service.
type IssuedCredential struct {
	Code      string        `json:"code"`
	ExpiresAt time.Time     `json:"expiresAt"`
	LockID    string        `json:"lockId"`
	Purpose   model.Purpose `json:"purpose"`
}

type VerifyRequest struct {
	Code    string
	LockID  string
	Purpose model.Purpose
}

type CredentialService struct {
	credentials repository.CredentialRepository
	locks       *lock.Registry
	gate        *entitlement.Gate
	windows     *window.Resolver
	controller  lock.Controller
	metrics     *metrics.Registry
	now         func() time.Time
	newCode     func() (string, error)
}

// NewCredentialService wires the issuer and verifier. controller should
// already carry the retry policy.
func NewCredentialService(
	credentials repository.CredentialRepository,
	locks *lock.Registry,
	gate *entitlement.Gate,
	windows *window.Resolver,
	controller lock.Controller,
	m *metrics.Registry,
) *CredentialService {
	return &CredentialService{
		credentials: credentials,
		locks:       locks,
		gate:        gate,
		windows:     windows,
		controller:  controller,
		metrics:     m,
		now:         time.Now,
		newCode: func() (string, error) {
			return util.GenerateNumericCode(config.CodeLength)
		},
	}
}

func (s *CredentialService) WithClock(now func() time.Time) *CredentialService {
	s.now = now
	return s
}

// Issue mints a fresh code for (lock, purpose, identity), invalidating any
// earlier code for the same tuple.
func (s *CredentialService) Issue(ctx context.Context, req IssueRequest) (*IssuedCredential, error) {
	issued, err := s.issue(ctx, req)

	event := audit.Event{
		Type:     audit.EventCredentialIssue,
		Identity: req.Identity,
		LockID:   req.LockID,
		Outcome:  outcome(err),
		Details:  map[string]interface{}{"purpose": string(req.Purpose)},
	}
	if issued != nil {
		event.Details["code"] = util.MaskCode(issued.Code)
		event.Details["expiresAt"] = issued.ExpiresAt
		s.metrics.CredentialsIssued.WithLabelValues(string(req.Purpose)).Inc()
	}
	audit.Log(ctx, event)

	return issued, err
}

func (s *CredentialService) issue(ctx context.Context, req IssueRequest) (*IssuedCredential, error) {
	l, ok := s.locks.Get(req.LockID)
	if !ok {
		return nil, apperrors.LockNotFound(req.LockID)
	}
	if !l.AcceptsPIN() {
		return nil, apperrors.PINDisabled(req.LockID)
	}
	if !l.Serves(req.Purpose) {
		return nil, apperrors.InvalidInput("purpose", "lock does not accept "+string(req.Purpose)+" credentials")
	}

	decision, err := s.gate.Authorize(ctx, req.Identity, l.FacilityID, req.Purpose)
	if err != nil {
		return nil, err
	}

	w, err := s.windows.Resolve(ctx, req.ReservationRef)
	if err != nil {
		return nil, err
	}
	// Only a rental constrains the window. Any other reservation is ignored
	// and the credential is an ordinary per-visit one.
	reservationRef := req.ReservationRef
	if w.Default {
		reservationRef = nil
	} else if res := w.Reservation; res != nil {
		if res.FacilityID != l.FacilityID {
			return nil, apperrors.ReservationFacilityMismatch()
		}
		if res.HolderIdentity != req.Identity && !decision.Bypass {
			return nil, apperrors.NotReservationHolder()
		}
	}

	for attempt := 1; attempt <= config.MaxCodeIssueAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, apperrors.Internal("Failed to generate code").WithCause(err)
		}
		id, err := newID(w.Start)
		if err != nil {
			return nil, apperrors.Internal("Failed to generate id").WithCause(err)
		}

		c, err := s.credentials.Replace(ctx, model.CreateCredentialParams{
			ID:             id,
			Code:           code,
			LockID:         l.ID,
			FacilityID:     l.FacilityID,
			Purpose:        req.Purpose,
			IssuedTo:       req.Identity,
			ReservationRef: reservationRef,
			IssuedAt:       w.Start,
			ExpiresAt:      w.End,
		})
		if errors.Is(err, repository.ErrCodeCollision) {
			log.Debug().Int("attempt", attempt).Str("lockId", l.ID).Msg("code collision, retrying")
			continue
		}
		if err != nil {
			return nil, apperrors.Database(err)
		}

		return &IssuedCredential{
			Code:      c.Code,
			ExpiresAt: c.ExpiresAt,
			LockID:    c.LockID,
			Purpose:   c.Purpose,
		}, nil
	}

	return nil, apperrors.Internal("Could not allocate a unique code")
}

// Verify checks a presented code, opens the lock and consumes the code. The
// code is only consumed once the lock has opened.
func (s *CredentialService) Verify(ctx context.Context, req VerifyRequest) error {
	err := s.verify(ctx, req)

	s.metrics.Verifications.WithLabelValues(outcome(err)).Inc()
	audit.Log(ctx, audit.Event{
		Type:    audit.EventCredentialVerify,
		LockID:  req.LockID,
		Outcome: outcome(err),
		Details: map[string]interface{}{
			"purpose": string(req.Purpose),
			"code":    util.MaskCode(req.Code),
		},
	})

	return err
}

func (s *CredentialService) verify(ctx context.Context, req VerifyRequest) error {
	now := s.now()

	found, err := s.credentials.FindByCode(ctx, req.LockID, req.Purpose, req.Code, now)
	if err != nil {
		return apperrors.Database(err)
	}
	if found == nil {
		return apperrors.InvalidCode()
	}

	_, err = s.credentials.Consume(ctx, found.ID, now, func(c *model.Credential) error {
		switch {
		case c.InvalidatedAt != nil:
			return apperrors.InvalidCode()
		case c.IsExpired(now):
			return apperrors.CredentialExpired()
		case c.ConsumedAt != nil:
			return apperrors.AlreadyUsed()
		}
		if err := s.controller.Actuate(ctx, c.LockID, c.Purpose); err != nil {
			log.Error().Err(err).Str("lockId", c.LockID).Msg("lock actuation failed")
			return apperrors.LockActuationFailed(err)
		}
		return nil
	})

	switch {
	case err == nil:
		return nil
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.InvalidCode()
	default:
		return apperrors.Database(err)
	}
}

// LockRecord is one unlock event reported by the lock vendor.
type LockRecord struct {
	TTLockID   int64
	Code       string
	RecordType int
	At         time.Time
}

type LockRecordResult struct {
	Status       model.LockRecordStatus `json:"status"`
	LockID       string                 `json:"lockId,omitempty"`
	CredentialID string                 `json:"credentialId,omitempty"`
	Purpose      model.Purpose          `json:"purpose,omitempty"`
}

// RecordUnlock consumes the credential a visitor typed straight into a lock
// keypad, which never passes through Verify. Records for unknown locks or
// codes are acknowledged, since the vendor account may serve other systems.
func (s *CredentialService) RecordUnlock(ctx context.Context, rec LockRecord) (*LockRecordResult, error) {
	result, err := s.recordUnlock(ctx, rec)

	event := audit.Event{
		Type:    audit.EventLockRecord,
		Outcome: outcome(err),
		Details: map[string]interface{}{
			"ttlockId":   rec.TTLockID,
			"recordType": rec.RecordType,
			"code":       util.MaskCode(rec.Code),
			"at":         rec.At,
		},
	}
	if result != nil {
		event.LockID = result.LockID
		event.Details["status"] = string(result.Status)
		s.metrics.LockRecords.WithLabelValues(string(result.Status)).Inc()
	}
	audit.Log(ctx, event)

	return result, err
}

func (s *CredentialService) recordUnlock(ctx context.Context, rec LockRecord) (*LockRecordResult, error) {
	if rec.RecordType != model.LockRecordKeypadUnlock {
		return &LockRecordResult{Status: model.LockRecordIgnored}, nil
	}

	l, ok := s.locks.ByTTLockID(rec.TTLockID)
	if !ok {
		log.Warn().Int64("ttlockId", rec.TTLockID).Msg("lock record for unregistered lock")
		return &LockRecordResult{Status: model.LockRecordUnmatched}, nil
	}
	result := &LockRecordResult{Status: model.LockRecordUnmatched, LockID: l.ID}
	if !util.IsNumericCode(rec.Code, config.CodeLength) {
		return result, nil
	}

	c, err := s.credentials.ConsumeByCode(ctx, l.ID, rec.Code, rec.At)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if c == nil {
		return result, nil
	}

	result.Status = model.LockRecordRecorded
	result.CredentialID = c.ID
	result.Purpose = c.Purpose
	return result, nil
}
