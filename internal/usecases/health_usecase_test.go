package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealth_AllOK(t *testing.T) {
	u := NewHealthUsecase(0)
	u.Register("database", func(context.Context) error { return nil }, true)
	u.Register("redis", func(context.Context) error { return nil }, false)

	report, ready := u.Check(context.Background())
	assert.True(t, ready)
	assert.Equal(t, HealthStatusOK, report.Status)
	assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, report.Components)
}

func TestHealth_NonCriticalDegraded(t *testing.T) {
	u := NewHealthUsecase(50 * time.Millisecond)
	u.Register("database", func(context.Context) error { return nil }, true)
	u.Register("queue", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, false)
	u.Register("storage", func(context.Context) error {
		time.Sleep(2 * time.Second)
		return nil
	}, false)

	start := time.Now()
	report, ready := u.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, ready)
	assert.Equal(t, HealthStatusDegraded, report.Status)
	assert.Equal(t, HealthStatusDegraded, report.Components["queue"])
	assert.Equal(t, HealthStatusDegraded, report.Components["storage"])
	assert.Equal(t, HealthStatusOK, report.Components["database"])
}

func TestHealth_DatabaseDownNotReady(t *testing.T) {
	u := NewHealthUsecase(0)
	u.Register("database", func(context.Context) error { return errors.New("connection refused") }, true)

	report, ready := u.Check(context.Background())
	assert.False(t, ready)
	assert.Equal(t, HealthStatusDegraded, report.Status)
}

func TestHealth_FailureDoesNotCancelSiblings(t *testing.T) {
	u := NewHealthUsecase(200 * time.Millisecond)
	u.Register("database", func(context.Context) error { return errors.New("connection refused") }, true)
	u.Register("redis", func(ctx context.Context) error {
		select {
		case <-time.After(20 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, false)

	report, ready := u.Check(context.Background())
	assert.False(t, ready)
	assert.Equal(t, HealthStatusDegraded, report.Components["database"])
	assert.Equal(t, HealthStatusOK, report.Components["redis"])
}
