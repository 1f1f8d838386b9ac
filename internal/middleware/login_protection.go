// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/olegiv/surveydesk/internal/cache"
	"github.com/olegiv/surveydesk/internal/service"
	"github.com/olegiv/surveydesk/internal/util"
)

// maxLockout caps the exponential lockout backoff.
const maxLockout = 24 * time.Hour

// loginAttemptKeyPrefix namespaces attempt records in the shared cache.
const loginAttemptKeyPrefix = "login-attempts:"

// LoginProtection provides combined IP rate limiting and account lockout protection.
// Attempt records live in a cache.Cache so lockouts are shared when the
// cache is Redis-backed.
type LoginProtection struct {
	// IP-based rate limiting (uses limiterCache from api.go)
	ipLimiters *limiterCache[string]

	// Account-based lockout tracking
	attempts cache.Cache
	mu       sync.Mutex
	now      func() time.Time

	// Configuration
	maxFailedAttempts int           // Lock account after this many failures
	lockoutDuration   time.Duration // Base lockout duration (doubles with each lockout)
	attemptWindow     time.Duration // Window to count failed attempts

	stopCh   chan struct{}
	stopOnce sync.Once
}

// loginAttempt tracks failed login attempts for an account.
type loginAttempt struct {
	Count       int       `json:"count"`
	FirstFailed time.Time `json:"first_failed"`
	LockedUntil time.Time `json:"locked_until"`
	Lockouts    int       `json:"lockouts"` // Number of times account has been locked (for exponential backoff)
}

// LoginProtectionConfig holds configuration for login protection.
type LoginProtectionConfig struct {
	// IPRateLimit is requests per second per IP (default: 0.5 = 1 request per 2 seconds)
	IPRateLimit float64
	// IPBurst is the maximum burst size for IP rate limiting (default: 5)
	IPBurst int
	// MaxFailedAttempts before account lockout (default: 5)
	MaxFailedAttempts int
	// LockoutDuration is base lockout time, doubles with each lockout (default: 15 minutes)
	LockoutDuration time.Duration
	// AttemptWindow is the time window for counting failed attempts (default: 15 minutes)
	AttemptWindow time.Duration
}

// DefaultLoginProtectionConfig returns sensible defaults.
func DefaultLoginProtectionConfig() LoginProtectionConfig {
	return LoginProtectionConfig{
		IPRateLimit:       0.5,              // 1 request per 2 seconds
		IPBurst:           5,                // Allow burst of 5 requests
		MaxFailedAttempts: 5,                // Lock after 5 failed attempts
		LockoutDuration:   15 * time.Minute, // 15 minute base lockout
		AttemptWindow:     15 * time.Minute, // 15 minute window
	}
}

// NewLoginProtection creates a new login protection instance storing attempt
// records in store. A nil store uses a private memory cache.
func NewLoginProtection(cfg LoginProtectionConfig, store cache.Cache) *LoginProtection {
	defaults := DefaultLoginProtectionConfig()
	if cfg.IPRateLimit <= 0 {
		cfg.IPRateLimit = defaults.IPRateLimit
	}
	if cfg.IPBurst <= 0 {
		cfg.IPBurst = defaults.IPBurst
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = defaults.MaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = defaults.LockoutDuration
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = defaults.AttemptWindow
	}
	if store == nil {
		store = cache.NewMemoryCache(cache.MemoryCacheOptions{
			DefaultTTL:      cfg.AttemptWindow,
			CleanupInterval: 10 * time.Minute,
		})
	}

	lp := &LoginProtection{
		ipLimiters:        newLimiterCache[string](cfg.IPRateLimit, cfg.IPBurst),
		attempts:          store,
		now:               time.Now,
		maxFailedAttempts: cfg.MaxFailedAttempts,
		lockoutDuration:   cfg.LockoutDuration,
		attemptWindow:     cfg.AttemptWindow,
		stopCh:            make(chan struct{}),
	}

	// Start cleanup goroutine
	go lp.cleanup()

	return lp
}

// Stop ends the background cleanup goroutine.
func (lp *LoginProtection) Stop() {
	lp.stopOnce.Do(func() { close(lp.stopCh) })
}

// CheckIPRateLimit checks if the IP is rate limited.
// Returns true if the request should be allowed.
func (lp *LoginProtection) CheckIPRateLimit(ip string) bool {
	return lp.ipLimiters.get(ip).Allow()
}

// IsAccountLocked checks if an account is currently locked.
// Returns (locked, remainingTime).
func (lp *LoginProtection) IsAccountLocked(ctx context.Context, account string) (bool, time.Duration) {
	attempt, ok := lp.load(ctx, account)
	if !ok {
		return false, 0
	}

	now := lp.now()
	if now.Before(attempt.LockedUntil) {
		return true, attempt.LockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailedAttempt records a failed login attempt.
// Returns (locked, lockDuration) if the account is now locked.
func (lp *LoginProtection) RecordFailedAttempt(ctx context.Context, account string) (bool, time.Duration) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	now := lp.now()
	attempt, exists := lp.load(ctx, account)

	// Start a new window on the first failure or once the old window has passed
	if !exists || now.Sub(attempt.FirstFailed) > lp.attemptWindow {
		attempt.Count = 0
		attempt.FirstFailed = now
	}

	attempt.Count++
	slog.Debug("login attempt recorded", "account", account, "count", attempt.Count)

	if attempt.Count < lp.maxFailedAttempts {
		lp.save(ctx, account, attempt)
		return false, 0
	}

	// Calculate lockout duration with exponential backoff
	lockDuration := lp.lockoutDuration
	for i := 0; i < attempt.Lockouts; i++ {
		lockDuration *= 2
		if lockDuration > maxLockout {
			lockDuration = maxLockout
			break
		}
	}

	attempt.LockedUntil = now.Add(lockDuration)
	attempt.Lockouts++
	attempt.Count = 0 // Reset count after lockout
	lp.save(ctx, account, attempt)

	slog.Warn("account locked due to failed attempts",
		"account", account,
		"lockouts", attempt.Lockouts,
		"duration", lockDuration,
	)

	return true, lockDuration
}

// RecordSuccessfulLogin clears failed attempt tracking for an account.
func (lp *LoginProtection) RecordSuccessfulLogin(ctx context.Context, account string) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if err := lp.attempts.Delete(ctx, loginAttemptKeyPrefix+account); err != nil {
		slog.Warn("failed to clear login attempts", "account", account, "error", err)
		return
	}
	slog.Debug("login attempts cleared", "account", account)
}

// GetRemainingAttempts returns the number of remaining attempts before lockout.
func (lp *LoginProtection) GetRemainingAttempts(ctx context.Context, account string) int {
	attempt, ok := lp.load(ctx, account)
	if !ok || lp.now().Sub(attempt.FirstFailed) > lp.attemptWindow {
		return lp.maxFailedAttempts
	}

	remaining := lp.maxFailedAttempts - attempt.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (lp *LoginProtection) load(ctx context.Context, account string) (loginAttempt, bool) {
	var attempt loginAttempt

	data, err := lp.attempts.Get(ctx, loginAttemptKeyPrefix+account)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.Warn("failed to load login attempts", "account", account, "error", err)
		}
		return attempt, false
	}

	if err := json.Unmarshal(data, &attempt); err != nil {
		slog.Warn("discarding corrupt login attempt record", "account", account, "error", err)
		return attempt, false
	}
	return attempt, true
}

// save stores the record until both the attempt window and any lockout have passed.
func (lp *LoginProtection) save(ctx context.Context, account string, attempt loginAttempt) {
	data, err := json.Marshal(attempt)
	if err != nil {
		return
	}

	now := lp.now()
	ttl := attempt.FirstFailed.Add(lp.attemptWindow).Sub(now)
	if until := attempt.LockedUntil.Sub(now); until > ttl {
		ttl = until
	}
	// Keep lockout history long enough for the backoff to escalate
	if attempt.Lockouts > 0 && ttl < maxLockout {
		ttl = maxLockout
	}
	if ttl <= 0 {
		ttl = lp.attemptWindow
	}

	if err := lp.attempts.Set(ctx, loginAttemptKeyPrefix+account, data, ttl); err != nil {
		slog.Warn("failed to store login attempts", "account", account, "error", err)
	}
}

// cleanup periodically drops per-IP limiter state.
func (lp *LoginProtection) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if lp.ipLimiters.clearIfExceeds(10000) {
				slog.Info("cleared IP rate limiters due to size")
			}
		case <-lp.stopCh:
			return
		}
	}
}

// Middleware returns HTTP middleware for IP rate limiting on login and signup.
func (lp *LoginProtection) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only rate limit POST requests
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ip := util.ClientIP(r)
			if delay := lp.ipLimiters.reserveDelay(ip); delay > 0 {
				slog.Warn("login rate limit exceeded", "ip", ip, "path", r.URL.Path)
				WriteRetryAfter(w, delay)
				WriteAPIError(w, http.StatusTooManyRequests, "Too many attempts. Please wait a moment and try again.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

var _ service.LoginGuard = (*LoginProtection)(nil)
