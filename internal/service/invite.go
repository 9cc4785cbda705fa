package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/audit"
	"github.com/wanpark/access-server-go/internal/config"
	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/lock"
	"github.com/wanpark/access-server-go/internal/metrics"
	"github.com/wanpark/access-server-go/internal/model"
	"github.com/wanpark/access-server-go/internal/repository"
	"github.com/wanpark/access-server-go/internal/util"
	"github.com/wanpark/access-server-go/internal/window"
)

type CreateInviteRequest struct {
	HostIdentity   string
	ReservationRef string
	MaxUses        *int
}

type CreatedInvite struct {
	Token       string    `json:"token"`
	URL         string    `json:"url"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	MaxUses     *int      `json:"maxUses"`
}

type RedeemInviteRequest struct {
	Token    string
	Identity string
	Purpose  model.Purpose
}

type RedeemResult struct {
	Status    model.UnlockStatus `json:"status"`
	UsedCount int                `json:"usedCount"`
}

// InviteView is the public projection of an invite. It omits the host.
type InviteView struct {
	FacilityID    string    `json:"facilityId"`
	WindowStart   time.Time `json:"windowStart"`
	WindowEnd     time.Time `json:"windowEnd"`
	MaxUses       *int      `json:"maxUses"`
	UsesRemaining *int      `json:"usesRemaining"`
	Revoked       bool      `json:"revoked"`
	Active        bool      `json:"active"`
}

type InviteService struct {
	invites    repository.InviteRepository
	locks      *lock.Registry
	windows    *window.Resolver
	controller lock.Controller
	metrics    *metrics.Registry
	baseURL    string
	now        func() time.Time
}

func NewInviteService(
	invites repository.InviteRepository,
	locks *lock.Registry,
	windows *window.Resolver,
	controller lock.Controller,
	m *metrics.Registry,
	baseURL string,
) *InviteService {
	return &InviteService{
		invites:    invites,
		locks:      locks,
		windows:    windows,
		controller: controller,
		metrics:    m,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

func (s *InviteService) WithClock(now func() time.Time) *InviteService {
	s.now = now
	return s
}

// Create mints a shareable token for a whole-facility rental held by the
// host. The token window is fixed at creation time.
func (s *InviteService) Create(ctx context.Context, req CreateInviteRequest) (*CreatedInvite, error) {
	if req.MaxUses != nil && *req.MaxUses < 1 {
		return nil, apperrors.InvalidInput("maxUses", "must be at least 1")
	}

	w, err := s.windows.RentalWindow(ctx, req.ReservationRef)
	if err != nil {
		return nil, err
	}
	res := w.Reservation
	if res.HolderIdentity != req.HostIdentity {
		return nil, apperrors.NotReservationHolder()
	}

	token, err := util.GenerateURLToken(config.InviteTokenBytes)
	if err != nil {
		return nil, apperrors.Internal("Failed to generate invite token").WithCause(err)
	}
	id, err := newID(w.Start)
	if err != nil {
		return nil, apperrors.Internal("Failed to generate id").WithCause(err)
	}

	inv, err := s.invites.Create(ctx, model.CreateInviteParams{
		ID:             id,
		Token:          token,
		HostIdentity:   req.HostIdentity,
		FacilityID:     res.FacilityID,
		ReservationRef: res.ID,
		WindowStart:    w.Start,
		WindowEnd:      w.End,
		MaxUses:        req.MaxUses,
		CreatedAt:      w.Start,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	s.metrics.InvitesCreated.Inc()
	audit.Log(ctx, audit.Event{
		Type:       audit.EventInviteCreate,
		Identity:   req.HostIdentity,
		FacilityID: inv.FacilityID,
		Details: map[string]interface{}{
			"invite":    util.TokenFingerprint(inv.Token),
			"windowEnd": inv.WindowEnd,
		},
	})

	return &CreatedInvite{
		Token:       inv.Token,
		URL:         s.baseURL + "/" + inv.Token,
		WindowStart: inv.WindowStart,
		WindowEnd:   inv.WindowEnd,
		MaxUses:     inv.MaxUses,
	}, nil
}

// Redeem opens the facility lock for any bearer of the token. Every check
// runs against the row-locked invite, so a revocation or the last remaining
// use cannot be overtaken by a concurrent redemption.
func (s *InviteService) Redeem(ctx context.Context, req RedeemInviteRequest) (*RedeemResult, error) {
	if req.Purpose == "" {
		req.Purpose = model.PurposeEntry
	}

	var (
		facilityID string
		lockID     string
	)

	inv, err := s.invites.Redeem(ctx, req.Token, func(inv *model.InviteToken) (model.InviteRedemption, error) {
		now := s.now()
		facilityID = inv.FacilityID
		switch {
		case inv.Revoked:
			return model.InviteRedemption{}, apperrors.InviteRevoked()
		case !inv.InWindow(now):
			return model.InviteRedemption{}, apperrors.OutsideWindow()
		case inv.UsesExhausted():
			return model.InviteRedemption{}, apperrors.UseLimitReached()
		}

		l, ok := s.locks.ForFacility(inv.FacilityID, req.Purpose)
		if !ok {
			return model.InviteRedemption{}, apperrors.LockNotFound(inv.FacilityID + "/" + string(req.Purpose))
		}
		lockID = l.ID

		if err := s.controller.Actuate(ctx, l.ID, req.Purpose); err != nil {
			log.Error().Err(err).Str("lockId", l.ID).Msg("invite lock actuation failed")
			return model.InviteRedemption{}, apperrors.LockActuationFailed(err)
		}

		return model.InviteRedemption{
			Identity:   req.Identity,
			LockID:     l.ID,
			Purpose:    req.Purpose,
			RedeemedAt: now,
		}, nil
	})

	switch {
	case err == nil:
	case apperrors.IsAppError(err):
	case errors.Is(err, repository.ErrNotFound):
		err = apperrors.NotFound("Invite")
	default:
		err = apperrors.Database(err)
	}

	s.metrics.InviteRedemptions.WithLabelValues(outcome(err)).Inc()
	audit.Log(ctx, audit.Event{
		Type:       audit.EventInviteRedeem,
		Identity:   req.Identity,
		FacilityID: facilityID,
		LockID:     lockID,
		Outcome:    outcome(err),
		Details: map[string]interface{}{
			"invite":  util.TokenFingerprint(req.Token),
			"purpose": string(req.Purpose),
		},
	})

	if err != nil {
		return nil, err
	}
	return &RedeemResult{Status: model.UnlockStatusUnlocked, UsedCount: inv.UsedCount}, nil
}

// Revoke permanently disables an invite. Revoking twice is not an error.
func (s *InviteService) Revoke(ctx context.Context, token, hostIdentity string) error {
	inv, err := s.invites.Revoke(ctx, token, hostIdentity, s.now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		err = apperrors.NotFound("Invite")
	case errors.Is(err, repository.ErrNotOwner):
		err = apperrors.NotOwner()
	default:
		err = apperrors.Database(err)
	}

	event := audit.Event{
		Type:     audit.EventInviteRevoke,
		Identity: hostIdentity,
		Outcome:  outcome(err),
		Details:  map[string]interface{}{"invite": util.TokenFingerprint(token)},
	}
	if inv != nil {
		event.FacilityID = inv.FacilityID
		s.metrics.InviteRevocations.Inc()
	}
	audit.Log(ctx, event)

	return err
}

// Lookup returns the public view of an invite.
func (s *InviteService) Lookup(ctx context.Context, token string) (*InviteView, error) {
	inv, err := s.invites.FindByToken(ctx, token)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if inv == nil {
		return nil, apperrors.NotFound("Invite")
	}

	return &InviteView{
		FacilityID:    inv.FacilityID,
		WindowStart:   inv.WindowStart,
		WindowEnd:     inv.WindowEnd,
		MaxUses:       inv.MaxUses,
		UsesRemaining: inv.UsesRemaining(),
		Revoked:       inv.Revoked,
		Active:        inv.Redeemable(s.now()),
	}, nil
}
