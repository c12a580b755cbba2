package capacity

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotifier(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisNotifier(rdb), mr
}

func TestDoctorBookedIncrementsLoad(t *testing.T) {
	n, mr := newNotifier(t)
	ctx := context.Background()
	doctor := uuid.New()

	load, err := n.Load(ctx, doctor)
	require.NoError(t, err)
	assert.Zero(t, load)

	require.NoError(t, n.DoctorBooked(ctx, doctor))
	require.NoError(t, n.DoctorBooked(ctx, doctor))
	require.NoError(t, n.DoctorBooked(ctx, uuid.New()))

	load, err = n.Load(ctx, doctor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), load)

	got, err := mr.Get("doctor:load:" + doctor.String())
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestDoctorBookedReportsRedisErrors(t *testing.T) {
	n, mr := newNotifier(t)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	err := n.DoctorBooked(context.Background(), uuid.New())
	assert.Error(t, err)
}
