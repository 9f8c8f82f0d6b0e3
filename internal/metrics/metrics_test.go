package metrics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockStatsProvider struct {
	calls atomic.Int32
	stats Stats
}

func (m *mockStatsProvider) LibraryStats() Stats {
	m.calls.Add(1)
	return m.stats
}

// Not parallel: the library gauges are global.
func TestCollectorRun(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		TotalImages:    12,
		TotalVideos:    3,
		TotalFavorites: 4,
		TotalTags:      2,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(provider, time.Hour)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for provider.calls.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("no collection on start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	c.Refresh()
	for provider.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("Refresh did not trigger a collection")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if got := testutil.ToFloat64(LibraryFilesTotal.WithLabelValues("image")); got != 12 {
		t.Errorf("image gauge = %v, want 12", got)
	}
	if got := testutil.ToFloat64(LibraryFavoritesTotal); got != 4 {
		t.Errorf("favorites gauge = %v, want 4", got)
	}
}

func TestCollectorRefreshNeverBlocks(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil, time.Hour)
	for range 10 {
		c.Refresh()
	}
	c.Collect()
}

func TestInitializeMetricsPrepopulatesLabels(t *testing.T) {
	InitializeMetrics()

	if n := testutil.CollectAndCount(LoaderRunsTotal); n < 3 {
		t.Errorf("LoaderRunsTotal has %d series, want >= 3", n)
	}
	if n := testutil.CollectAndCount(ListLoadsTotal); n < 15 {
		t.Errorf("ListLoadsTotal has %d series, want >= 15", n)
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc123", "go1.25")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "go1.25")); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}
}
