package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/httputil"
	"github.com/wanpark/access-server-go/internal/middleware"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON rejects unknown fields so that typos in optional fields are not
// silently ignored.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.ValidationError("Request body is required")
		case errors.As(err, &maxBytes):
			return apperrors.ValidationError("Request body too large")
		default:
			return apperrors.ValidationError("Invalid request body").WithCause(err)
		}
	}
	return nil
}

// callerIdentity returns the authenticated subject. A body identity, when
// sent, must name the same subject.
func callerIdentity(r *http.Request, claimed string) (string, error) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		return "", apperrors.Unauthorized("Authentication required")
	}
	if claimed != "" && claimed != identity {
		return "", apperrors.Forbidden("identity does not match the authenticated user")
	}
	return identity, nil
}
