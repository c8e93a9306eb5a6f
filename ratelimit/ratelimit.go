package ratelimit

import (
	"sync"
	"time"

	"github.com/mezonai/votechain/errors"
	"github.com/mezonai/votechain/exception"
)

// Config holds configuration for one sliding window
type Config struct {
	MaxRequests     int           // Maximum number of requests allowed
	WindowSize      time.Duration // Time window for rate limiting
	CleanupInterval time.Duration // How often to clean up expired entries
}

func DefaultConfig() Config {
	return Config{
		MaxRequests:     10,
		WindowSize:      time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter implements sliding window rate limiting per key
type RateLimiter struct {
	config   Config
	requests map[string][]time.Time
	mu       sync.Mutex
	now      func() time.Time

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

// NewRateLimiter creates a new rate limiter. A non-positive MaxRequests
// disables limiting.
func NewRateLimiter(config Config) *RateLimiter {
	if config.WindowSize <= 0 {
		config.WindowSize = time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		config:      config,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	exception.SafeGo("rateLimiterCleanup", rl.cleanupExpiredEntries)
	return rl
}

// Allow records a request for key and reports whether it fits in the window
func (rl *RateLimiter) Allow(key string) bool {
	if rl.config.MaxRequests <= 0 {
		return true
	}

	now := rl.now()
	cutoff := now.Add(-rl.config.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := prune(rl.requests[key], cutoff)
	if len(valid) >= rl.config.MaxRequests {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

// prune drops timestamps at or before cutoff. Timestamps are appended in order.
func prune(requests []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	return requests[i:]
}

// Count returns the number of requests for key still inside the window
func (rl *RateLimiter) Count(key string) int {
	cutoff := rl.now().Add(-rl.config.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(prune(rl.requests[key], cutoff))
}

// Reset removes all entries for a given key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

// cleanupExpiredEntries periodically removes expired entries to prevent memory leaks
func (rl *RateLimiter) cleanupExpiredEntries() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-rl.config.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, requests := range rl.requests {
		valid := prune(requests, cutoff)
		if len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

func (rl *RateLimiter) keys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// TxLimiterConfig holds the windows guarding transaction submission
type TxLimiterConfig struct {
	IP     Config
	Sender Config
	Global Config
}

func DefaultTxLimiterConfig() TxLimiterConfig {
	return TxLimiterConfig{
		IP: Config{
			MaxRequests:     50,
			WindowSize:      time.Second,
			CleanupInterval: 5 * time.Minute,
		},
		Sender: Config{
			MaxRequests:     30,
			WindowSize:      time.Second,
			CleanupInterval: 5 * time.Minute,
		},
		Global: Config{
			MaxRequests:     1000,
			WindowSize:      time.Second,
			CleanupInterval: 5 * time.Minute,
		},
	}
}

// TxLimiter limits submissions per client IP, per sender address and overall
type TxLimiter struct {
	ip     *RateLimiter
	sender *RateLimiter
	global *RateLimiter
}

func NewTxLimiter(config TxLimiterConfig) *TxLimiter {
	return &TxLimiter{
		ip:     NewRateLimiter(config.IP),
		sender: NewRateLimiter(config.Sender),
		global: NewRateLimiter(config.Global),
	}
}

// Allow returns a rate_limited error naming the first window that is full
func (tl *TxLimiter) Allow(ip, sender string) error {
	if !tl.ip.Allow(ip) {
		return errors.NewError(errors.ErrCodeRateLimited, errors.ErrMsgRateLimited+" (ip "+ip+")")
	}
	if !tl.sender.Allow(sender) {
		return errors.NewError(errors.ErrCodeRateLimited, errors.ErrMsgRateLimited+" (sender "+sender+")")
	}
	if !tl.global.Allow("global") {
		return errors.NewError(errors.ErrCodeRateLimited, errors.ErrMsgRateLimited)
	}
	return nil
}

func (tl *TxLimiter) Stop() {
	tl.ip.Stop()
	tl.sender.Stop()
	tl.global.Stop()
}
