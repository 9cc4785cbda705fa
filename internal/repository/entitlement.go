package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wanpark/access-server-go/internal/model"
)

// EntitlementRepository reads the billing system's entitlements table.
type EntitlementRepository interface {
	GetEntitlement(ctx context.Context, identity, facilityID string) (model.EntitlementFact, error)
}

type entitlementRow struct {
	Kind          string         `db:"kind"`
	ValidUntil    *time.Time     `db:"valid_until"`
	FacilityScope pq.StringArray `db:"facility_scope"`
}

type entitlementRepo struct {
	db *sqlx.DB
}

func NewEntitlementRepository(db *sqlx.DB) EntitlementRepository {
	return &entitlementRepo{db: db}
}

// GetEntitlement returns the single most useful fact for the facility. An
// unexpired subscription ranks first, then a current day pass for the
// facility, then any day pass for it, then anything else. The ranking keeps
// the gate's reason specific.
func (r *entitlementRepo) GetEntitlement(ctx context.Context, identity, facilityID string) (model.EntitlementFact, error) {
	var row entitlementRow
	found, err := HandleNotFound(&row, r.db.GetContext(ctx, &row, `
		SELECT kind, valid_until, facility_scope FROM entitlements
		WHERE identity = $1
		ORDER BY
			CASE
				WHEN kind = 'admin_bypass' THEN 0
				WHEN kind = 'active_subscription' AND (valid_until IS NULL OR valid_until > NOW()) THEN 1
				WHEN kind = 'active_day_pass' AND $2 = ANY(facility_scope) AND valid_until > NOW() THEN 2
				WHEN kind = 'active_day_pass' AND $2 = ANY(facility_scope) THEN 3
				ELSE 4
			END,
			valid_until DESC NULLS LAST
		LIMIT 1
	`, identity, facilityID))
	if err != nil {
		return model.EntitlementFact{}, err
	}
	if found == nil {
		return model.NoEntitlement(), nil
	}
	return model.EntitlementFact{
		Kind:          model.EntitlementKind(found.Kind),
		ValidUntil:    found.ValidUntil,
		FacilityScope: []string(found.FacilityScope),
	}, nil
}
