package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
)

// CircuitBreaker tracks consecutive failures of a notification channel in
// Redis so every relay instance sees the same state.
//
// closed: sends proceed, failures are counted.
// open: sends are skipped until the cooldown has elapsed.
// half-open: one probe send is let through; success closes, failure reopens.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

// CircuitBreakerState is a snapshot of one channel's circuit.
type CircuitBreakerState struct {
	Name         string `json:"name"`
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

// NewCircuitBreaker creates a breaker. Non-positive threshold or cooldown
// fall back to the defaults.
func NewCircuitBreaker(redisClient *redis.Client, threshold int, cooldown time.Duration, logger *slog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: threshold,
		cooldownPeriod:   cooldown,
	}
}

func cbKey(name string) string {
	return fmt.Sprintf("relay:cb:%s", name)
}

// AllowRequest reports the circuit state for name and whether a send may
// proceed. Redis errors leave the circuit closed.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context, name string) (string, bool) {
	key := cbKey(name)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		cb.logger.Error("failed to read circuit breaker state", "error", err, "sender", name)
		return StateClosed, true
	}
	if len(data) == 0 {
		return StateClosed, true
	}

	switch data["state"] {
	case StateOpen:
		if !cb.cooledDown(data["last_failed_at"]) {
			return StateOpen, false
		}
		cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", "sender", name)
		return StateHalfOpen, true
	case StateHalfOpen:
		return StateHalfOpen, true
	default:
		return StateClosed, true
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, name string) {
	key := cbKey(name)

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()
	if err := cb.redisClient.HSet(ctx, key, "state", StateClosed, "failures", 0).Err(); err != nil {
		cb.logger.Error("failed to record circuit breaker success", "error", err, "sender", name)
		return
	}
	if prev == StateHalfOpen {
		cb.logger.Info("circuit breaker closed (recovered)", "sender", name)
	}
}

// RecordFailure counts a failed send and opens the circuit once the
// threshold is reached, or immediately when a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, name string) {
	key := cbKey(name)

	var (
		incr  *redis.IntCmd
		state *redis.StringCmd
	)
	_, err := cb.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, "failures", 1)
		pipe.HSet(ctx, key, "last_failed_at", time.Now().Unix())
		state = pipe.HGet(ctx, key, "state")
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "sender", name)
		return
	}

	failures := incr.Val()
	switch {
	case state.Val() == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened (half-open probe failed)", "sender", name)
	case failures >= int64(cb.failureThreshold) && state.Val() != StateOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			"sender", name,
			"failures", failures,
			"threshold", cb.failureThreshold,
		)
	case state.Val() == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// GetState returns the circuit snapshot for name.
func (cb *CircuitBreaker) GetState(ctx context.Context, name string) CircuitBreakerState {
	data, err := cb.redisClient.HGetAll(ctx, cbKey(name)).Result()
	if err != nil || len(data) == 0 {
		return CircuitBreakerState{Name: name, State: StateClosed}
	}

	result := CircuitBreakerState{Name: name, State: data["state"]}
	result.Failures, _ = strconv.Atoi(data["failures"])
	if result.State == "" {
		result.State = StateClosed
	}
	if result.State == StateOpen && cb.cooledDown(data["last_failed_at"]) {
		result.State = StateHalfOpen
	}
	if lastFailed, _ := strconv.ParseInt(data["last_failed_at"], 10, 64); lastFailed > 0 {
		result.LastFailedAt = time.Unix(lastFailed, 0).UTC().Format(time.RFC3339)
	}
	return result
}

func (cb *CircuitBreaker) cooledDown(lastFailedAt string) bool {
	ts, _ := strconv.ParseInt(lastFailedAt, 10, 64)
	return time.Since(time.Unix(ts, 0)) >= cb.cooldownPeriod
}
