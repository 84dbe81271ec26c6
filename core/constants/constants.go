package constants

import "time"

// Server
const (
	DefaultTimeout  = 30 * time.Second
	ShutdownTimeout = 10 * time.Second
)

// Database pool
const (
	DatabaseSSLMode         = "disable"
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
)

// Google Calendar provider
const (
	ProviderCallTimeout  = 30 * time.Second
	ProviderMaxAttempts  = 3
	ProviderRetryBackoff = 2 * time.Second
	TokenRefreshMargin   = 5 * time.Minute
	EventsPageSize       = 500
)

// Sync engine
const (
	// BackfillDefaultYears is how far into the past and future the initial
	// backfill walks when the caller gives no explicit bounds.
	BackfillDefaultYears = 2

	// ResyncWindowDays bounds the full resync issued after a sync token expires.
	ResyncWindowDays = 365

	// ExpansionWindowYears is the half-width of the recurrence expansion window.
	ExpansionWindowYears = 20

	// MaxInstancesPerEvent caps materialized occurrences per recurring event.
	MaxInstancesPerEvent = 200

	InstanceInsertBatchSize = 50
)

// Cache
const (
	SyncStatusCacheTTL = 15 * time.Second
)
