package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Rows that stopped being usable longer ago than this are swept.
const CleanupRetention = 24 * time.Hour

// Default rate limiting
const DefaultRateLimitPerMin = 60

// Credential issuance
const (
	CodeLength           = 6
	MaxCodeIssueAttempts = 10
	InviteTokenBytes     = 32
)
