package model

import "fmt"

// Purpose is the direction of passage a lock credential is bound to.
type Purpose string

const (
	PurposeEntry Purpose = "entry"
	PurposeExit  Purpose = "exit"
)

func (p Purpose) Valid() bool {
	return p == PurposeEntry || p == PurposeExit
}

// ParsePurpose accepts "entry" or "exit". An empty string defaults to entry.
func ParsePurpose(s string) (Purpose, error) {
	if s == "" {
		return PurposeEntry, nil
	}
	p := Purpose(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown purpose %q", s)
	}
	return p, nil
}

type EntitlementKind string

const (
	EntitlementNone               EntitlementKind = "none"
	EntitlementActiveSubscription EntitlementKind = "active_subscription"
	EntitlementActiveDayPass      EntitlementKind = "active_day_pass"
	EntitlementAdminBypass        EntitlementKind = "admin_bypass"
)

type ReservationType string

const (
	ReservationTypeRegular       ReservationType = "regular"
	ReservationTypePrivateBooth  ReservationType = "private_booth"
	ReservationTypeWholeFacility ReservationType = "whole_facility"
)

type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// UnlockStatus is the success status reported by verify and redeem.
type UnlockStatus string

const (
	UnlockStatusUnlocked UnlockStatus = "UNLOCKED"
	UnlockStatusRevoked  UnlockStatus = "REVOKED"
)

// LockRecordStatus reports what a lock record callback changed.
type LockRecordStatus string

const (
	LockRecordRecorded  LockRecordStatus = "RECORDED"
	LockRecordUnmatched LockRecordStatus = "UNMATCHED"
	LockRecordIgnored   LockRecordStatus = "IGNORED"
)

// LockRecordKeypadUnlock is the vendor record type for a keypad code that
// opened the lock. Other record types are acknowledged and dropped.
const LockRecordKeypadUnlock = 2
