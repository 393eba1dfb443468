package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Decision ist das Ergebnis einer Zählung im festen Zeitfenster.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// AttemptLimiter zählt Versuche pro Schlüssel in einem festen Fenster (INCR + EXPIRE).
type AttemptLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewAttemptLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow zählt einen Versuch für key. Ein limit <= 0 schaltet die Begrenzung ab.
func (l *AttemptLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis INCR fehlgeschlagen: %w", err)
	}

	ttl := l.window
	if count == 1 {
		// Verfallsdatum nur beim ersten Zählerstand, damit das Fenster fest bleibt.
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("redis EXPIRE fehlgeschlagen: %w", err)
		}
	} else {
		ttl, err = l.client.TTL(ctx, redisKey).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("redis TTL fehlgeschlagen: %w", err)
		}
		if ttl < 0 {
			// Schlüssel ohne Ablauf (z.B. EXPIRE nach INCR verloren): Fenster neu setzen.
			ttl = l.window
			l.client.Expire(ctx, redisKey, l.window)
		}
	}

	return Decision{
		Allowed:    count <= int64(l.limit),
		Count:      count,
		RetryAfter: ttl,
	}, nil
}

// Cooldown erlaubt eine Aktion pro Schlüssel höchstens einmal je ttl (SET NX).
type Cooldown struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCooldown(client *redis.Client, prefix string, ttl time.Duration) *Cooldown {
	return &Cooldown{client: client, prefix: prefix, ttl: ttl}
}

// Acquire liefert true, wenn für key kein Cooldown läuft, und startet ihn.
func (c *Cooldown) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := c.client.SetNX(ctx, fmt.Sprintf("%s:%s", c.prefix, key), 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX fehlgeschlagen: %w", err)
	}
	return ok, nil
}
