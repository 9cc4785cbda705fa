package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      apperrors.ErrorCode
		wantCategory  apperrors.Category
		wantRetryable bool
	}{
		{"payment required", apperrors.PaymentRequired("Buy a day pass"), http.StatusPaymentRequired, apperrors.ErrCodePaymentRequired, apperrors.CategoryEntitlement, false},
		{"reservation expired", apperrors.ReservationExpired(), http.StatusGone, apperrors.ErrCodeReservationExpired, apperrors.CategoryTemporal, false},
		{"already used", apperrors.AlreadyUsed(), http.StatusConflict, apperrors.ErrCodeAlreadyUsed, apperrors.CategoryIntegrity, false},
		{"lock actuation", apperrors.LockActuationFailed(errors.New("timeout")), http.StatusBadGateway, apperrors.ErrCodeLockActuation, apperrors.CategoryInfrastructure, true},
		{"entitlement source down", apperrors.EntitlementCheckFailed(errors.New("dial")), http.StatusServiceUnavailable, apperrors.ErrCodeEntitlementCheck, apperrors.CategoryInfrastructure, true},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal, apperrors.CategoryInfrastructure, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Code)
			assert.Equal(t, tc.wantCategory, body.Category)
			assert.Equal(t, tc.wantRetryable, body.Retryable)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestStatusFromCodeDistinguishesTemporalAndEntitlement(t *testing.T) {
	assert.NotEqual(t,
		StatusFromCode(apperrors.ErrCodePaymentRequired),
		StatusFromCode(apperrors.ErrCodeReservationExpired))
	assert.NotEqual(t,
		StatusFromCode(apperrors.ErrCodeCredentialExpired),
		StatusFromCode(apperrors.ErrCodeLockActuation))
}
