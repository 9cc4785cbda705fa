package service

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/metrics"
)

func newID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// outcome labels a result for metrics and audit: "ok" or the error code.
func outcome(err error) string {
	if err == nil {
		return metrics.Result("")
	}
	return metrics.Result(string(apperrors.GetCode(err)))
}
