package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"gallery/internal/metrics"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Not parallel: replaces the package sleep hook.
func TestWithRetryBackoff(t *testing.T) {
	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }
	defer func() { sleep = time.Sleep }()

	config := RetryConfig{MaxRetries: 4, InitialBackoff: 10 * time.Millisecond, MaxBackoff: 30 * time.Millisecond}

	t.Run("recovers", func(t *testing.T) {
		slept = nil
		calls := 0
		got, err := withRetry("stat", "/nfs/a.jpg", config, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, syscall.ESTALE
			}
			return 7, nil
		})
		if err != nil || got != 7 {
			t.Fatalf("withRetry() = %d, %v", got, err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
		if len(slept) != len(want) || slept[0] != want[0] || slept[1] != want[1] {
			t.Errorf("slept %v, want %v", slept, want)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		slept = nil
		before := testutil.ToFloat64(metrics.FilesystemRetryFailures.WithLabelValues("readdir"))
		calls := 0
		_, err := withRetry("readdir", "/nfs", config, func() ([]os.DirEntry, error) {
			calls++
			return nil, syscall.ESTALE
		})
		if !errors.Is(err, syscall.ESTALE) {
			t.Fatalf("withRetry() error = %v, want ESTALE", err)
		}
		if calls != config.MaxRetries+1 {
			t.Errorf("calls = %d, want %d", calls, config.MaxRetries+1)
		}
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond}
		if len(slept) != len(want) {
			t.Fatalf("slept %v, want %v", slept, want)
		}
		for i := range want {
			if slept[i] != want[i] {
				t.Errorf("sleep %d = %v, want %v", i, slept[i], want[i])
			}
		}
		if after := testutil.ToFloat64(metrics.FilesystemRetryFailures.WithLabelValues("readdir")); after != before+1 {
			t.Errorf("retry failures went from %v to %v", before, after)
		}
	})

	t.Run("other errors fail fast", func(t *testing.T) {
		slept = nil
		calls := 0
		_, err := withRetry("stat", "/nfs/b.jpg", config, func() (int, error) {
			calls++
			return 0, os.ErrPermission
		})
		if !errors.Is(err, os.ErrPermission) || calls != 1 || len(slept) != 0 {
			t.Errorf("err = %v, calls = %d, slept = %v", err, calls, slept)
		}
	})
}

func TestStatWithRetry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("test content"), 0o600); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error: %v", err)
	}
	if info.Size() != 12 {
		t.Errorf("Size() = %d, want 12", info.Size())
	}

	if _, err := StatWithRetry(filepath.Join(dir, "missing.jpg"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("StatWithRetry() on a missing file = %v, want not exist", err)
	}
}

func TestReadDirWithRetry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ReadDirWithRetry(dir, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry() error: %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "a.png" {
		t.Errorf("ReadDirWithRetry() = %v", entries)
	}

	if _, err := ReadDirWithRetry(filepath.Join(dir, "nope"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("ReadDirWithRetry() on a missing dir = %v, want not exist", err)
	}
}

func BenchmarkStatWithRetry(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		b.Fatal(err)
	}
	config := DefaultRetryConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := StatWithRetry(path, config); err != nil {
			b.Fatal(err)
		}
	}
}
