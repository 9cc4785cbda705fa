// Package entitlement decides whether an identity may request a lock
// credential for a facility.
package entitlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/model"
)

// Reasons carried by a negative Decision. They surface verbatim in the
// PAYMENT_REQUIRED message.
const (
	ReasonNone              = "No active subscription or day pass"
	ReasonWrongFacility     = "Your day pass is for a different facility"
	ReasonDayPassExpired    = "Your day pass has expired"
	ReasonSubscriptionEnded = "Your subscription has ended"
)

// Source reads billing facts owned by another system.
type Source interface {
	GetEntitlement(ctx context.Context, identity, facilityID string) (model.EntitlementFact, error)
}

// RoleSource answers whether an identity owns or staffs a facility.
type RoleSource interface {
	IsOwnerOrStaff(ctx context.Context, identity, facilityID string) (bool, error)
}

// VaccinationSource answers whether an identity has an approved vaccination
// certificate on file at the given instant.
type VaccinationSource interface {
	HasApprovedVaccination(ctx context.Context, identity string, at time.Time) (bool, error)
}

type Decision struct {
	Entitled bool
	Bypass   bool
	Reason   string
}

// Evaluate applies the entitlement rules to a single fact. It has no side
// effects.
func Evaluate(fact model.EntitlementFact, facilityID string, now time.Time) Decision {
	switch fact.Kind {
	case model.EntitlementAdminBypass:
		return Decision{Entitled: true, Bypass: true}
	case model.EntitlementActiveSubscription:
		if fact.ValidUntil != nil && !fact.ValidUntil.After(now) {
			return Decision{Reason: ReasonSubscriptionEnded}
		}
		return Decision{Entitled: true}
	case model.EntitlementActiveDayPass:
		if !fact.Covers(facilityID) {
			return Decision{Reason: ReasonWrongFacility}
		}
		if fact.ValidUntil == nil || !fact.ValidUntil.After(now) {
			return Decision{Reason: ReasonDayPassExpired}
		}
		return Decision{Entitled: true}
	default:
		return Decision{Reason: ReasonNone}
	}
}

type Gate struct {
	source       Source
	roles        RoleSource
	vaccinations VaccinationSource
	now          func() time.Time
}

// NewGate builds a gate. vaccinations may be nil, in which case entry
// credentials are not vaccination gated.
func NewGate(source Source, roles RoleSource, vaccinations VaccinationSource) *Gate {
	return &Gate{
		source:       source,
		roles:        roles,
		vaccinations: vaccinations,
		now:          time.Now,
	}
}

// WithClock replaces the gate's time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Check returns the decision for identity at facilityID. Owner or staff
// identities are entitled without consulting the billing source. An error is
// only returned when a source could not be reached.
func (g *Gate) Check(ctx context.Context, identity, facilityID string) (Decision, error) {
	staff, err := g.roles.IsOwnerOrStaff(ctx, identity, facilityID)
	if err != nil {
		log.Error().Err(err).Str("facilityId", facilityID).Msg("role lookup failed")
		return Decision{}, apperrors.EntitlementCheckFailed(err)
	}
	if staff {
		return Decision{Entitled: true, Bypass: true}, nil
	}

	fact, err := g.source.GetEntitlement(ctx, identity, facilityID)
	if err != nil {
		log.Error().Err(err).Str("facilityId", facilityID).Msg("entitlement lookup failed")
		return Decision{}, apperrors.EntitlementCheckFailed(err)
	}

	return Evaluate(fact, facilityID, g.now()), nil
}

// Authorize turns Check into an error result for credential issuance. Entry
// credentials for non-bypass identities additionally require an approved
// vaccination when a vaccination source is configured.
func (g *Gate) Authorize(ctx context.Context, identity, facilityID string, purpose model.Purpose) (Decision, error) {
	decision, err := g.Check(ctx, identity, facilityID)
	if err != nil {
		return Decision{}, err
	}
	if !decision.Entitled {
		return decision, apperrors.PaymentRequired(decision.Reason)
	}
	if decision.Bypass || purpose != model.PurposeEntry || g.vaccinations == nil {
		return decision, nil
	}

	ok, err := g.vaccinations.HasApprovedVaccination(ctx, identity, g.now())
	if err != nil {
		log.Error().Err(err).Msg("vaccination lookup failed")
		return Decision{}, apperrors.EntitlementCheckFailed(err)
	}
	if !ok {
		return decision, apperrors.VaccinationRequired()
	}
	return decision, nil
}
