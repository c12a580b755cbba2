// Package capacity tracks how many appointments each doctor has taken on.
// The counters are advisory: they are updated after a booking commits and
// may lag or drift if an update fails.
package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "doctor:load:"

type RedisNotifier struct {
	rdb redis.Cmdable
}

func NewRedisNotifier(rdb redis.Cmdable) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func loadKey(doctorID uuid.UUID) string {
	return keyPrefix + doctorID.String()
}

// DoctorBooked increments the doctor's load counter.
func (n *RedisNotifier) DoctorBooked(ctx context.Context, doctorID uuid.UUID) error {
	if err := n.rdb.Incr(ctx, loadKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("incr %s: %w", loadKey(doctorID), err)
	}
	return nil
}

// Load returns the doctor's counter, zero if it was never set.
func (n *RedisNotifier) Load(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	v, err := n.rdb.Get(ctx, loadKey(doctorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", loadKey(doctorID), err)
	}
	return v, nil
}
