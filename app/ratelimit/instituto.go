package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/coracaovalente/instituto-integration/utils"
)

// Policy holds the two admission limits guarding partner deliveries
type Policy struct {
	UserMaxRequests   int
	UserWindow        time.Duration
	GlobalMaxRequests int
	GlobalWindow      time.Duration
}

// DefaultPolicy allows 5 sends per user every 5 minutes and 100 partner calls per hour
func DefaultPolicy() Policy {
	return Policy{
		UserMaxRequests:   5,
		UserWindow:        5 * time.Minute,
		GlobalMaxRequests: 100,
		GlobalWindow:      time.Hour,
	}
}

// StatsRecorder persists admission outcomes outside the process
type StatsRecorder interface {
	Record(ctx context.Context, limiter string, allowed bool, at time.Time) error
}

const (
	limiterUser   = "user"
	limiterGlobal = "global"
)

// InstitutoLimiter binds the user and global policies to a shared Limiter
type InstitutoLimiter struct {
	limiter  *Limiter
	user     Config
	global   Config
	recorder StatsRecorder
	logger   *log.Logger
}

// NewInstitutoLimiter builds the partner limiter; recorder may be nil.
// Admission already counts a request, so successful outcomes are not recorded twice.
func NewInstitutoLimiter(l *Limiter, p Policy, recorder StatsRecorder, logger *log.Logger) *InstitutoLimiter {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &InstitutoLimiter{
		limiter: l,
		user: Config{
			MaxRequests:            p.UserMaxRequests,
			Window:                 p.UserWindow,
			KeyGenerator:           func(userID string) string { return utils.UserRateLimitKeyPrefix + userID },
			SkipSuccessfulRequests: true,
		},
		global: Config{
			MaxRequests:            p.GlobalMaxRequests,
			Window:                 p.GlobalWindow,
			KeyGenerator:           func(string) string { return utils.GlobalRateLimitKey },
			SkipSuccessfulRequests: true,
		},
		recorder: recorder,
		logger:   logger,
	}
}

func (r *InstitutoLimiter) CanSendUserData(ctx context.Context, userID string) Decision {
	d := r.limiter.CanMakeRequest(userID, r.user)
	r.observe(ctx, limiterUser, d.Allowed)
	return d
}

func (r *InstitutoLimiter) CanMakeAPICall(ctx context.Context) Decision {
	d := r.limiter.CanMakeRequest(limiterGlobal, r.global)
	r.observe(ctx, limiterGlobal, d.Allowed)
	return d
}

func (r *InstitutoLimiter) RecordUserDataSend(userID string, success bool) {
	r.limiter.RecordRequest(userID, success, r.user)
}

func (r *InstitutoLimiter) RecordAPICall(success bool) {
	r.limiter.RecordRequest(limiterGlobal, success, r.global)
}

func (r *InstitutoLimiter) UserStatus(userID string) Status {
	return r.limiter.Status(userID, r.user)
}

func (r *InstitutoLimiter) APIStatus() Status {
	return r.limiter.Status(limiterGlobal, r.global)
}

// ClearUser resets the per-user window, used by operators to unblock a user
func (r *InstitutoLimiter) ClearUser(userID string) {
	r.limiter.Clear(userID, r.user)
}

func (r *InstitutoLimiter) observe(ctx context.Context, name string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	decisionsTotal.WithLabelValues(name, outcome).Inc()

	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, name, allowed, time.Now()); err != nil {
		r.logger.Printf("ratelimit: failed to record %s decision: %v", name, err)
	}
}
