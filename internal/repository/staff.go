package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type StaffRepository interface {
	IsOwnerOrStaff(ctx context.Context, identity, facilityID string) (bool, error)
}

type staffRepo struct {
	db *sqlx.DB
}

func NewStaffRepository(db *sqlx.DB) StaffRepository {
	return &staffRepo{db: db}
}

func (r *staffRepo) IsOwnerOrStaff(ctx context.Context, identity, facilityID string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `
		SELECT EXISTS (
			SELECT 1 FROM facility_staff
			WHERE facility_id = $1 AND identity = $2 AND role IN ('owner', 'staff')
		)
	`, facilityID, identity)
	return ok, err
}

type VaccinationRepository interface {
	HasApprovedVaccination(ctx context.Context, identity string, at time.Time) (bool, error)
}

type vaccinationRepo struct {
	db *sqlx.DB
}

func NewVaccinationRepository(db *sqlx.DB) VaccinationRepository {
	return &vaccinationRepo{db: db}
}

func (r *vaccinationRepo) HasApprovedVaccination(ctx context.Context, identity string, at time.Time) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `
		SELECT EXISTS (
			SELECT 1 FROM vaccination_approvals
			WHERE identity = $1 AND approved_until >= $2
		)
	`, identity, at)
	return ok, err
}
