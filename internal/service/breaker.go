package service

import (
	"context"
	"fmt"
	"time"

	"einvoice-dispatch/config"
	"einvoice-dispatch/internal/core/ports"

	"github.com/rs/zerolog"
)

// Breaker channels used by the dispatch worker.
const (
	ChannelSendDocument = "kolaysoft:sendDocument"
	ChannelSendDespatch = "kolaysoft:sendDespatch"
)

// RedisBreaker implements ports.CircuitBreaker as a finite-state machine over
// an atomic counter store. Counter keys carry a TTL equal to the open window,
// so a long-idle closed breaker self-resets rather than tracking a strict
// sliding window. opened_at carries twice the window: Allow has to observe it
// AFTER the window elapses to enter half-open, so it must not expire at the
// same instant the window does.
//
// States are encoded in keys per channel:
//
//	failures:<ch>  consecutive failures while closed
//	opened_at:<ch> unix seconds of the open transition; presence means open
//	half_open:<ch> probing flag after the open window elapsed
//	trials:<ch>    failed probe count while half-open
type RedisBreaker struct {
	counters         ports.CounterStore
	failureThreshold int64
	openWindow       time.Duration
	halfOpenTrials   int64
	now              func() time.Time
	log              zerolog.Logger
}

// NewRedisBreaker creates a circuit breaker from configuration.
func NewRedisBreaker(counters ports.CounterStore, cfg config.BreakerConfig, log zerolog.Logger) *RedisBreaker {
	return &RedisBreaker{
		counters:         counters,
		failureThreshold: cfg.FailureThreshold,
		openWindow:       cfg.OpenWindow,
		halfOpenTrials:   cfg.HalfOpenTrials,
		now:              time.Now,
		log:              log,
	}
}

func breakerKey(kind, channel string) string {
	return fmt.Sprintf("breaker:%s:%s", kind, channel)
}

// Allow reports whether a call on the channel may proceed. A false return
// means "do not attempt", not a failure of the call itself.
func (b *RedisBreaker) Allow(ctx context.Context, channel string) (bool, error) {
	openedAt, err := b.counters.Get(ctx, breakerKey("opened_at", channel))
	if err != nil {
		return false, err
	}

	if openedAt > 0 {
		elapsed := b.now().Unix() - openedAt
		if elapsed < int64(b.openWindow.Seconds()) {
			return false, nil
		}
		// Open window elapsed: transition to half-open and permit the probe.
		if err := b.counters.Del(ctx,
			breakerKey("opened_at", channel),
			breakerKey("trials", channel),
			breakerKey("failures", channel),
		); err != nil {
			return false, err
		}
		if err := b.counters.Set(ctx, breakerKey("half_open", channel), 1, b.openWindow); err != nil {
			return false, err
		}
		b.log.Info().Str("channel", channel).Msg("circuit breaker half-open, probing")
		return true, nil
	}

	// Closed or already half-open: calls proceed.
	return true, nil
}

// RecordFailure advances the breaker after a failed call.
func (b *RedisBreaker) RecordFailure(ctx context.Context, channel string) error {
	halfOpen, err := b.counters.Get(ctx, breakerKey("half_open", channel))
	if err != nil {
		return err
	}

	if halfOpen > 0 {
		trials, err := b.counters.Incr(ctx, breakerKey("trials", channel), b.openWindow)
		if err != nil {
			return err
		}
		if trials >= b.halfOpenTrials {
			b.log.Warn().Str("channel", channel).Int64("trials", trials).Msg("circuit breaker re-opened after failed probes")
			return b.open(ctx, channel)
		}
		return nil
	}

	openedAt, err := b.counters.Get(ctx, breakerKey("opened_at", channel))
	if err != nil {
		return err
	}
	if openedAt > 0 {
		// A call that was already in flight when the breaker tripped.
		// Counting it would refresh opened_at and stretch the cooldown.
		return nil
	}

	failures, err := b.counters.Incr(ctx, breakerKey("failures", channel), b.openWindow)
	if err != nil {
		return err
	}
	if failures >= b.failureThreshold {
		b.log.Warn().Str("channel", channel).Int64("failures", failures).Msg("circuit breaker opened")
		return b.open(ctx, channel)
	}
	return nil
}

// RecordSuccess forces the breaker closed from any state.
func (b *RedisBreaker) RecordSuccess(ctx context.Context, channel string) error {
	return b.counters.Del(ctx,
		breakerKey("failures", channel),
		breakerKey("trials", channel),
		breakerKey("half_open", channel),
		breakerKey("opened_at", channel),
	)
}

func (b *RedisBreaker) open(ctx context.Context, channel string) error {
	if err := b.counters.Del(ctx,
		breakerKey("failures", channel),
		breakerKey("trials", channel),
		breakerKey("half_open", channel),
	); err != nil {
		return err
	}
	return b.counters.Set(ctx, breakerKey("opened_at", channel), b.now().Unix(), 2*b.openWindow)
}
