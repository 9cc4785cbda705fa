package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/model"
)

func entryAt(lockID string) IssueRequest {
	return IssueRequest{Identity: "U", LockID: lockID, Purpose: model.PurposeEntry}
}

func TestCredentialService_DayPassScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")

	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, issued.Code)
	assert.Equal(t, t0.Add(5*time.Minute), issued.ExpiresAt)
	assert.Equal(t, "F-gate", issued.LockID)
	assert.Equal(t, model.PurposeEntry, issued.Purpose)

	f.clock.Advance(time.Minute)
	verify := VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry}
	require.NoError(t, f.creds.Verify(ctx, verify))
	assert.Equal(t, []string{"F-gate/entry"}, f.hardware.Calls())

	requireCode(t, f.creds.Verify(ctx, verify), apperrors.ErrCodeAlreadyUsed)
	assert.Len(t, f.hardware.Calls(), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CredentialsIssued.WithLabelValues("entry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("ALREADY_USED")))
}

func TestCredentialService_NoEntitlement(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.creds.Issue(context.Background(), entryAt("F-gate"))
	requireCode(t, err, apperrors.ErrCodePaymentRequired)
	assert.Empty(t, f.credentials.All())
}

func TestCredentialService_EntitlementForOtherFacility(t *testing.T) {
	f := newFixture(t, false)
	f.dayPass("U", "G")

	_, err := f.creds.Issue(context.Background(), entryAt("F-gate"))
	requireCode(t, err, apperrors.ErrCodePaymentRequired)

	_, err = f.creds.Issue(context.Background(), entryAt("G-entry"))
	assert.NoError(t, err)
}

func TestCredentialService_EntitlementSourceDown(t *testing.T) {
	f := newFixture(t, false)
	f.entitlements.Err = errors.New("billing unreachable")

	_, err := f.creds.Issue(context.Background(), entryAt("F-gate"))
	requireCode(t, err, apperrors.ErrCodeEntitlementCheck)
	assert.True(t, apperrors.Retryable(apperrors.GetCode(err)))
}

func TestCredentialService_LockChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F", "G")

	_, err := f.creds.Issue(ctx, entryAt("nowhere"))
	requireCode(t, err, apperrors.ErrCodeLockNotFound)

	_, err = f.creds.Issue(ctx, entryAt("F-side"))
	requireCode(t, err, apperrors.ErrCodePINDisabled)

	_, err = f.creds.Issue(ctx, IssueRequest{Identity: "U", LockID: "G-entry", Purpose: model.PurposeExit})
	requireCode(t, err, apperrors.ErrCodeInvalidInput)
}

func TestCredentialService_StaffBypass(t *testing.T) {
	f := newFixture(t, true)
	f.staff.Add("F", "owner")

	issued, err := f.creds.Issue(context.Background(), IssueRequest{Identity: "owner", LockID: "F-gate", Purpose: model.PurposeEntry})
	require.NoError(t, err)
	assert.Len(t, issued.Code, 6)
}

func TestCredentialService_VaccinationGatesEntryOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.dayPass("U", "F")

	_, err := f.creds.Issue(ctx, entryAt("F-gate"))
	requireCode(t, err, apperrors.ErrCodeVaccinationRequired)

	_, err = f.creds.Issue(ctx, IssueRequest{Identity: "U", LockID: "F-gate", Purpose: model.PurposeExit})
	require.NoError(t, err)

	f.vaccinations.Approve("U", t0.Add(30*24*time.Hour))
	_, err = f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)
}

func TestCredentialService_AtMostOneLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")
	f.codes("111111", "222222", "333333")

	for i := 0; i < 3; i++ {
		_, err := f.creds.Issue(ctx, entryAt("F-gate"))
		require.NoError(t, err)
	}

	live := 0
	for _, c := range f.credentials.All() {
		if c.IsLive(t0) {
			live++
			assert.Equal(t, "333333", c.Code)
		}
	}
	assert.Equal(t, 1, live)

	for _, old := range []string{"111111", "222222"} {
		err := f.creds.Verify(ctx, VerifyRequest{Code: old, LockID: "F-gate", Purpose: model.PurposeEntry})
		requireCode(t, err, apperrors.ErrCodeInvalidCode)
	}
	require.NoError(t, f.creds.Verify(ctx, VerifyRequest{Code: "333333", LockID: "F-gate", Purpose: model.PurposeEntry}))
	assert.Len(t, f.hardware.Calls(), 1)
}

func TestCredentialService_ConcurrentIssueLeavesOneLive(t *testing.T) {
	f := newFixture(t, false)
	f.dayPass("U", "F")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.creds.Issue(context.Background(), entryAt("F-gate"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all := f.credentials.All()
	require.Len(t, all, n)
	live := 0
	for _, c := range all {
		if c.InvalidatedAt == nil {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestCredentialService_CollisionRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("A", "F")
	f.dayPass("B", "F")
	f.codes("111111", "111111", "222222")

	a, err := f.creds.Issue(ctx, IssueRequest{Identity: "A", LockID: "F-gate", Purpose: model.PurposeEntry})
	require.NoError(t, err)
	assert.Equal(t, "111111", a.Code)

	b, err := f.creds.Issue(ctx, IssueRequest{Identity: "B", LockID: "F-gate", Purpose: model.PurposeEntry})
	require.NoError(t, err)
	assert.Equal(t, "222222", b.Code)
}

func TestCredentialService_RentalWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("H", "F")
	f.rental("R1", "H")
	rentalEnd := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)

	req := IssueRequest{Identity: "H", LockID: "F-gate", Purpose: model.PurposeEntry, ReservationRef: strPtr("R1")}
	for _, step := range []time.Duration{0, time.Hour, 119 * time.Minute} {
		f.clock.Advance(step)
		issued, err := f.creds.Issue(ctx, req)
		require.NoError(t, err)
		assert.False(t, issued.ExpiresAt.After(rentalEnd))
		assert.Equal(t, rentalEnd, issued.ExpiresAt)
	}

	f.clock.Advance(2 * time.Minute)
	_, err := f.creds.Issue(ctx, req)
	requireCode(t, err, apperrors.ErrCodeReservationExpired)
}

func TestCredentialService_RentalChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F", "G")
	f.rental("R1", "H")
	f.staff.Add("F", "staff")

	_, err := f.creds.Issue(ctx, IssueRequest{Identity: "U", LockID: "F-gate", Purpose: model.PurposeEntry, ReservationRef: strPtr("R1")})
	requireCode(t, err, apperrors.ErrCodeNotReservationHold)

	_, err = f.creds.Issue(ctx, IssueRequest{Identity: "U", LockID: "G-entry", Purpose: model.PurposeEntry, ReservationRef: strPtr("R1")})
	requireCode(t, err, apperrors.ErrCodeFacilityMismatch)

	_, err = f.creds.Issue(ctx, IssueRequest{Identity: "U", LockID: "F-gate", Purpose: model.PurposeEntry, ReservationRef: strPtr("R404")})
	requireCode(t, err, apperrors.ErrCodeReservationMissing)

	issued, err := f.creds.Issue(ctx, IssueRequest{Identity: "staff", LockID: "F-gate", Purpose: model.PurposeEntry, ReservationRef: strPtr("R1")})
	require.NoError(t, err)
	assert.Equal(t, 13, issued.ExpiresAt.Hour())
}

func TestCredentialService_OrdinaryReservationUsesDefaultWindow(t *testing.T) {
	f := newFixture(t, false)
	f.dayPass("U", "F")
	f.reservations.Put(model.Reservation{
		ID: "R2", FacilityID: "F", HolderIdentity: "U", Type: model.ReservationTypeRegular,
		Date: "2026-05-01", StartTime: "09:00", DurationHours: 4, Status: model.ReservationStatusConfirmed,
	})

	f.reservations.Put(model.Reservation{
		ID: "R-G", FacilityID: "G", HolderIdentity: "someone-else", Type: model.ReservationTypeRegular,
		Date: "2026-05-01", StartTime: "09:00", DurationHours: 4, Status: model.ReservationStatusConfirmed,
	})

	for _, ref := range []string{"R2", "R-G"} {
		t.Run(ref, func(t *testing.T) {
			issued, err := f.creds.Issue(context.Background(), IssueRequest{Identity: "U", LockID: "F-gate", Purpose: model.PurposeEntry, ReservationRef: strPtr(ref)})
			require.NoError(t, err)
			assert.Equal(t, t0.Add(5*time.Minute), issued.ExpiresAt)
		})
	}

	for _, c := range f.credentials.All() {
		assert.Nil(t, c.ReservationRef)
	}
}

func TestCredentialService_ActuationFailureKeepsCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")
	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)
	verify := VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry}

	f.hardware.FailNext(3)
	err = f.creds.Verify(ctx, verify)
	requireCode(t, err, apperrors.ErrCodeLockActuation)
	assert.True(t, apperrors.Retryable(apperrors.GetCode(err)))
	assert.Len(t, f.hardware.Calls(), 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ActuationRetries))

	for _, c := range f.credentials.All() {
		assert.Nil(t, c.ConsumedAt)
	}

	require.NoError(t, f.creds.Verify(ctx, verify))
	requireCode(t, f.creds.Verify(ctx, verify), apperrors.ErrCodeAlreadyUsed)
}

func TestCredentialService_TransientFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")
	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)

	f.hardware.FailNext(2)
	require.NoError(t, f.creds.Verify(ctx, VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry}))
	assert.Len(t, f.hardware.Calls(), 3)
}

func TestCredentialService_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")
	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)
	verify := VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry}

	f.clock.Advance(5 * time.Minute)
	f.hardware.FailNext(3)
	requireCode(t, f.creds.Verify(ctx, verify), apperrors.ErrCodeLockActuation)

	f.clock.Advance(time.Second)
	requireCode(t, f.creds.Verify(ctx, verify), apperrors.ErrCodeCredentialExpired)
	assert.Len(t, f.hardware.Calls(), 3)
}

func TestCredentialService_WrongLockOrPurpose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F", "G")
	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)

	requireCode(t, f.creds.Verify(ctx, VerifyRequest{Code: issued.Code, LockID: "G-entry", Purpose: model.PurposeEntry}), apperrors.ErrCodeInvalidCode)
	requireCode(t, f.creds.Verify(ctx, VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeExit}), apperrors.ErrCodeInvalidCode)
	assert.Empty(t, f.hardware.Calls())
}

func TestCredentialService_EntryExitIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")
	f.codes("111111", "222222")

	entry, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)
	exit, err := f.creds.Issue(ctx, IssueRequest{Identity: "U", LockID: "F-gate", Purpose: model.PurposeExit})
	require.NoError(t, err)

	require.NoError(t, f.creds.Verify(ctx, VerifyRequest{Code: entry.Code, LockID: "F-gate", Purpose: model.PurposeEntry}))

	for _, c := range f.credentials.All() {
		if c.Purpose == model.PurposeExit {
			assert.True(t, c.IsLive(f.clock.Now()))
		}
	}
	require.NoError(t, f.creds.Verify(ctx, VerifyRequest{Code: exit.Code, LockID: "F-gate", Purpose: model.PurposeExit}))
	assert.Equal(t, []string{"F-gate/entry", "F-gate/exit"}, f.hardware.Calls())
}

func TestCredentialService_ConcurrentVerifyUnlocksOnce(t *testing.T) {
	f := newFixture(t, false)
	f.dayPass("U", "F")
	issued, err := f.creds.Issue(context.Background(), entryAt("F-gate"))
	require.NoError(t, err)

	const n = 10
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.creds.Verify(context.Background(), VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry})
		}()
	}
	wg.Wait()
	close(results)

	unlocked := 0
	for err := range results {
		if err == nil {
			unlocked++
			continue
		}
		assert.Equal(t, apperrors.ErrCodeAlreadyUsed, apperrors.GetCode(err))
	}
	assert.Equal(t, 1, unlocked)
	assert.Len(t, f.hardware.Calls(), 1)
}

func TestCredentialService_RecordUnlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")

	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)

	rec := LockRecord{TTLockID: 7001, Code: issued.Code, RecordType: model.LockRecordKeypadUnlock, At: t0.Add(time.Minute)}
	result, err := f.creds.RecordUnlock(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, model.LockRecordRecorded, result.Status)
	assert.Equal(t, "F-gate", result.LockID)
	assert.Equal(t, model.PurposeEntry, result.Purpose)
	assert.NotEmpty(t, result.CredentialID)

	stored := f.credentials.All()
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].ConsumedAt)
	assert.Equal(t, t0.Add(time.Minute), *stored[0].ConsumedAt)

	// The panel cannot reuse a code the keypad already took.
	verify := VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry}
	requireCode(t, f.creds.Verify(ctx, verify), apperrors.ErrCodeAlreadyUsed)
	assert.Empty(t, f.hardware.Calls())

	// Vendors redeliver callbacks.
	result, err = f.creds.RecordUnlock(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, model.LockRecordUnmatched, result.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LockRecords.WithLabelValues("RECORDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LockRecords.WithLabelValues("UNMATCHED")))
}

func TestCredentialService_RecordUnlockLeavesOtherCodesAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")
	f.codes("111111")

	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)
	at := t0.Add(time.Minute)

	tests := []struct {
		name   string
		rec    LockRecord
		status model.LockRecordStatus
		lockID string
	}{
		{"card or app unlock", LockRecord{TTLockID: 7001, Code: "111111", RecordType: 1, At: at}, model.LockRecordIgnored, ""},
		{"unregistered lock", LockRecord{TTLockID: 9999, Code: "111111", RecordType: 2, At: at}, model.LockRecordUnmatched, ""},
		{"code from another system", LockRecord{TTLockID: 7001, Code: "222222", RecordType: 2, At: at}, model.LockRecordUnmatched, "F-gate"},
		{"not a code we issue", LockRecord{TTLockID: 7001, Code: "12345678", RecordType: 2, At: at}, model.LockRecordUnmatched, "F-gate"},
		{"after expiry", LockRecord{TTLockID: 7001, Code: "111111", RecordType: 2, At: t0.Add(6 * time.Minute)}, model.LockRecordUnmatched, "F-gate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.creds.RecordUnlock(ctx, tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.lockID, result.LockID)
		})
	}

	f.clock.Advance(time.Minute)
	require.NoError(t, f.creds.Verify(ctx, VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry}))
}

func TestCredentialService_RecordUnlockAfterVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.dayPass("U", "F")

	issued, err := f.creds.Issue(ctx, entryAt("F-gate"))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	require.NoError(t, f.creds.Verify(ctx, VerifyRequest{Code: issued.Code, LockID: "F-gate", Purpose: model.PurposeEntry}))

	result, err := f.creds.RecordUnlock(ctx, LockRecord{TTLockID: 7001, Code: issued.Code, RecordType: 2, At: f.clock.Now()})
	require.NoError(t, err)
	assert.Equal(t, model.LockRecordUnmatched, result.Status)

	stored := f.credentials.All()
	require.Len(t, stored, 1)
	assert.Equal(t, t0.Add(time.Minute), *stored[0].ConsumedAt)
}
