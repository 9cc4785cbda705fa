package handler

import (
	"net/http"
	"time"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/service"
)

// POST /v1/locks/records
// Unlock callback from the lock vendor. Anything the service does not act on
// still gets a 200 so the vendor stops redelivering it.
func (h *CredentialHandler) LockRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LockID      int64  `json:"lockId"`
		KeyboardPwd string `json:"keyboardPwd"`
		RecordType  *int   `json:"recordType"`
		Date        int64  `json:"date"`
		Username    string `json:"username"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	switch {
	case req.LockID == 0:
		writeError(w, apperrors.MissingRequired("lockId"))
		return
	case req.KeyboardPwd == "":
		writeError(w, apperrors.MissingRequired("keyboardPwd"))
		return
	case req.RecordType == nil:
		writeError(w, apperrors.MissingRequired("recordType"))
		return
	case req.Date <= 0:
		writeError(w, apperrors.MissingRequired("date"))
		return
	}

	result, err := h.credentials.RecordUnlock(r.Context(), service.LockRecord{
		TTLockID:   req.LockID,
		Code:       req.KeyboardPwd,
		RecordType: *req.RecordType,
		At:         time.UnixMilli(req.Date).UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
