package model

import (
	"time"
)

// Credential is an issued numeric lock code bound to one lock, one purpose and
// one identity.
type Credential struct {
	ID             string     `db:"id" json:"id"`
	Code           string     `db:"code" json:"-"`
	LockID         string     `db:"lock_id" json:"lockId"`
	FacilityID     string     `db:"facility_id" json:"facilityId"`
	Purpose        Purpose    `db:"purpose" json:"purpose"`
	IssuedTo       string     `db:"issued_to" json:"issuedTo"`
	ReservationRef *string    `db:"reservation_ref" json:"reservationRef,omitempty"`
	IssuedAt       time.Time  `db:"issued_at" json:"issuedAt"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expiresAt"`
	ConsumedAt     *time.Time `db:"consumed_at" json:"consumedAt,omitempty"`
	InvalidatedAt  *time.Time `db:"invalidated_at" json:"invalidatedAt,omitempty"`
}

type CreateCredentialParams struct {
	ID             string
	Code           string
	LockID         string
	FacilityID     string
	Purpose        Purpose
	IssuedTo       string
	ReservationRef *string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// IsExpired reports whether now is past the expiry. A credential is still
// valid at exactly ExpiresAt.
func (c *Credential) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsLive reports whether the credential can still open its lock.
func (c *Credential) IsLive(now time.Time) bool {
	return c.InvalidatedAt == nil && c.ConsumedAt == nil && !c.IsExpired(now)
}
