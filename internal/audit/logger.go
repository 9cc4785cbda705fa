package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventCredentialIssue  EventType = "credential_issue"
	EventCredentialVerify EventType = "credential_verify"
	EventInviteCreate     EventType = "invite_create"
	EventInviteRedeem     EventType = "invite_redeem"
	EventInviteRevoke     EventType = "invite_revoke"
	EventLockRecord       EventType = "lock_record"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventAuthFailure      EventType = "auth_failure"
)

// Event is one access decision. Outcome is "ok" or the error code.
type Event struct {
	Type       EventType
	Identity   string
	FacilityID string
	LockID     string
	Outcome    string
	IP         string
	UserAgent  string
	Details    map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "access").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Identity != "" {
		logger = logger.With().Str("identity", event.Identity).Logger()
	}
	if event.FacilityID != "" {
		logger = logger.With().Str("facility_id", event.FacilityID).Logger()
	}
	if event.LockID != "" {
		logger = logger.With().Str("lock_id", event.LockID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	outcome := event.Outcome
	if outcome == "" {
		outcome = "ok"
	}
	logEvent := logger.Info()
	if outcome != "ok" {
		logEvent = logger.Warn()
	}
	logEvent = logEvent.Str("outcome", outcome)
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("access audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Time:
		return e.Time(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = clientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// clientIP trusts RemoteAddr, which chi's RealIP middleware has already
// rewritten from the proxy headers.
func clientIP(r *http.Request) string {
	return r.RemoteAddr
}
