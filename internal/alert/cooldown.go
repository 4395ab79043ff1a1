package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Cooldown tracks at-most-once delivery per alert signature. Postgres
// alert_state is authoritative (spec.md §4.7); a Redis SETNX lock is an
// additional guard against two scheduler instances racing to send the
// same signature in the same millisecond, grounded on the teacher's
// Redis cache client (spec.md §6, §9).
type Cooldown struct {
	db    *sqlx.DB
	redis *redis.Client
}

// NewCooldown builds a Cooldown. redisClient may be nil; the Redis
// guard is then skipped and Postgres alone enforces cooldown.
func NewCooldown(db *sqlx.DB, redisClient *redis.Client) *Cooldown {
	return &Cooldown{db: db, redis: redisClient}
}

// ShouldSend reports whether signature is eligible to send now given
// cooldown, and if so acquires the short-lived distributed lock that
// guards the subsequent send+record sequence.
func (c *Cooldown) ShouldSend(ctx context.Context, signature string, cooldown time.Duration, now time.Time) (bool, error) {
	if c.redis != nil {
		lockKey := "alert:lock:" + signature
		acquired, err := c.redis.SetNX(ctx, lockKey, "1", 10*time.Second).Result()
		if err != nil {
			return false, fmt.Errorf("acquire alert lock: %w", err)
		}
		if !acquired {
			return false, nil
		}
	}

	var lastSentAt time.Time
	err := c.db.QueryRowContext(ctx, `SELECT last_sent_at FROM alert_state WHERE signature = $1`, signature).Scan(&lastSentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("lookup alert state: %w", err)
	}

	return now.Sub(lastSentAt) >= cooldown, nil
}

// Record upserts last_sent_at for signature after a successful send.
// Per spec.md §4.7, this must NOT be called when the send itself failed.
func (c *Cooldown) Record(ctx context.Context, signature string, sentAt time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO alert_state (signature, last_sent_at)
		VALUES ($1, $2)
		ON CONFLICT (signature) DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at`,
		signature, sentAt)
	if err != nil {
		return fmt.Errorf("record alert state %s: %w", signature, err)
	}
	return nil
}
