package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSlotLockKey(t *testing.T) {
	id := uuid.MustParse("6f1c2a1e-8e55-4a57-9a3e-0d3c1f2b4a10")
	assert.Equal(t, "lock:slot:6f1c2a1e-8e55-4a57-9a3e-0d3c1f2b4a10", slotLockKey(id))
}

func TestNopLocker_PassesThrough(t *testing.T) {
	called := false
	want := errors.New("boom")

	err := NopLocker{}.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		called = true
		return want
	})

	assert.True(t, called)
	assert.ErrorIs(t, err, want)
}

func TestClientOptionsDefaults(t *testing.T) {
	o := ClientOptions{Addr: "127.0.0.1:6379"}.withDefaults()

	assert.Equal(t, 10, o.PoolSize)
	assert.Equal(t, 2*time.Second, o.IOTimeout)
	assert.Equal(t, 5*time.Second, o.PingTimeout)
	assert.Equal(t, 1, o.MinIdleConns)

	o = ClientOptions{PoolSize: 32, IOTimeout: time.Second}.withDefaults()
	assert.Equal(t, 32, o.PoolSize)
	assert.Equal(t, time.Second, o.IOTimeout)
}

func TestNewRedisClientRejectsEmptyAddr(t *testing.T) {
	_, err := NewRedisClient(context.Background(), ClientOptions{})
	assert.Error(t, err)
}
