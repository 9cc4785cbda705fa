package model

import (
	"time"
)

// EntitlementFact is the billing fact for an identity as reported by the
// external entitlement store.
type EntitlementFact struct {
	Kind          EntitlementKind
	ValidUntil    *time.Time
	FacilityScope []string
}

// NoEntitlement is the fact for an identity with nothing on file.
func NoEntitlement() EntitlementFact {
	return EntitlementFact{Kind: EntitlementNone}
}

// Covers reports whether the fact's facility scope includes facilityID. An
// empty scope covers nothing.
func (f EntitlementFact) Covers(facilityID string) bool {
	for _, id := range f.FacilityScope {
		if id == facilityID {
			return true
		}
	}
	return false
}
