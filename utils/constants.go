package utils

import (
	"time"
)

type contextKey string

// Request-scoped context keys set by the HTTP handlers
const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)

// Token time constants
const (
	// AccessTokenTTL is the time-to-live for admin access tokens
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for admin refresh tokens
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
const CORSMaxAge = 86400

// Integration defaults
const (
	// DefaultQueueDelaySeconds is used when a caller enqueues without a delay
	DefaultQueueDelaySeconds = 300

	// DefaultQueueMaxAttempts is used when a caller enqueues without an attempt ceiling
	DefaultQueueMaxAttempts = 3

	// DefaultCleanupOlderThanHours is the age after which queue entries are purged
	DefaultCleanupOlderThanHours = 24

	// UserRateLimitKeyPrefix namespaces per-user limiter entries
	UserRateLimitKeyPrefix = "instituto_integration:"

	// GlobalRateLimitKey is the fixed key of the global API limiter
	GlobalRateLimitKey = "instituto_api_global"
)

// Queue constants
const (
	// QueueLockKey guards a poll pass across replicas
	QueueLockKey = "instituto_integration:queue_lock"

	// FinalFailureMessage is stored on a log abandoned after its last retry
	FinalFailureMessage = "Falha após múltiplas tentativas de retry"
)
