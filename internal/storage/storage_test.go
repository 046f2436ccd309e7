package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/listing-harvester/internal/domain"
)

func newRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr())
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisDetailCache(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedis(t)
	require.NoError(t, s.Ping(ctx))

	url := "https://www.bayut.com/property/details-1.html"
	_, ok, err := s.GetDetail(ctx, url)
	require.NoError(t, err)
	assert.False(t, ok)

	d := domain.Detail{
		Description: domain.Text("Bright flat"),
		Amenities:   domain.Amenities{Items: []string{}, Valid: true},
	}
	require.NoError(t, s.PutDetail(ctx, url, d, time.Hour))

	got, ok, err := s.GetDetail(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d.Description, got.Description)
	assert.True(t, got.Amenities.Valid)
	assert.Empty(t, got.Amenities.Items)

	mr.FastForward(2 * time.Hour)
	_, ok, err = s.GetDetail(ctx, url)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisDetailCacheKeepsSentinels(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedis(t)

	url := "https://www.bayut.com/property/details-2.html"
	require.NoError(t, s.PutDetail(ctx, url, domain.Detail{Description: domain.Text("x")}, time.Hour))

	got, ok, err := s.GetDetail(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Amenities.Valid)
}

func TestRedisRuns(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedis(t)

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	run := &domain.RunStatus{
		ID:        "abc",
		Status:    domain.StatusCompleted,
		Regions:   []domain.Region{"dubai"},
		Filter:    domain.FilterAll,
		Pages:     map[domain.Region]int{"dubai": 3},
		StartedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveRun(ctx, run))
	assert.True(t, mr.Exists("run:abc"))

	got, err := s.GetRun(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Pages["dubai"])
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedis(t)
	mr.Close()

	assert.Error(t, s.Ping(ctx))
	_, _, err := s.GetDetail(ctx, "https://www.bayut.com/x")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Ping(ctx))

	_, err := s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	run := &domain.RunStatus{ID: "r1", Status: domain.StatusRunning, Pages: map[domain.Region]int{}}
	require.NoError(t, s.SaveRun(ctx, run))

	run.Pages["dubai"] = 9 // must not leak into the stored copy
	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Empty(t, got.Pages)
}
