package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		token   string
		want    time.Duration
		wantErr bool
	}{
		{"30m", 30 * time.Minute, false},
		{"1h", time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{" 1H ", time.Hour, false},
		{"", 0, true},
		{"h", 0, true},
		{"0h", 0, true},
		{"-1h", 0, true},
		{"10x", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseInterval(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, CheckDue(nil, "1h", now).IsDue)

	recent := now.Add(-10 * time.Minute)
	result := CheckDue(&recent, "1h", now)
	assert.False(t, result.IsDue)
	assert.Equal(t, recent.Add(time.Hour), result.NextCheckTime)

	old := now.Add(-2 * time.Hour)
	assert.True(t, CheckDue(&old, "1h", now).IsDue)

	assert.True(t, CheckDue(&recent, "bogus", now).IsDue)
}

func TestErrorsMatchCategories(t *testing.T) {
	assert.ErrorIs(t, NewValidationError("url", "bad"), ErrValidation)
	assert.ErrorIs(t, NotFoundError("task", "x"), ErrNotFound)
	assert.ErrorIs(t, ConflictError("task %s is terminal", "x"), ErrConflict)

	cause := errors.New("dial refused")
	up := &UpstreamError{Kind: UpstreamNetwork, URL: "http://x", Err: cause}
	assert.ErrorIs(t, up, ErrUpstream)
	assert.ErrorIs(t, up, cause)
	assert.True(t, up.Retryable())

	assert.False(t, (&UpstreamError{Kind: UpstreamParse, Err: cause}).Retryable())
	assert.False(t, (&UpstreamError{Kind: UpstreamStatus, Err: &StatusError{Code: 404}}).Retryable())
	assert.True(t, (&UpstreamError{Kind: UpstreamStatus, Err: &StatusError{Code: 503}}).Retryable())
}

func TestRetryPolicy_Do(t *testing.T) {
	logger := arbor.NewLogger()
	policy := &RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}

	t.Run("retries transient errors", func(t *testing.T) {
		var calls int
		err := policy.Do(context.Background(), logger, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return &UpstreamError{Kind: UpstreamTimeout, Err: context.DeadlineExceeded}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		var calls int
		err := policy.Do(context.Background(), logger, func(ctx context.Context) error {
			calls++
			return &UpstreamError{Kind: UpstreamParse, Err: errors.New("bad html")}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("single attempt by default", func(t *testing.T) {
		p := NewRetryPolicy(RetryConfig{})
		var calls int
		_ = p.Do(context.Background(), logger, func(ctx context.Context) error {
			calls++
			return &UpstreamError{Kind: UpstreamNetwork, Err: errors.New("reset")}
		})
		assert.Equal(t, 1, calls)
	})
}

func TestCalculateBackoff_RespectsMax(t *testing.T) {
	p := &RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.CalculateBackoff(attempt)
		assert.LessOrEqual(t, d, time.Second+time.Second/4)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Empty(t, km.locks)
}

func TestBackground_WaitAndPanicRecovery(t *testing.T) {
	bg := NewBackground(context.Background(), arbor.NewLogger())

	var ran atomic.Int32
	bg.Go("ok", func(ctx context.Context) { ran.Add(1) })
	bg.Go("panics", func(ctx context.Context) { panic("boom") })
	bg.Go("ok2", func(ctx context.Context) { ran.Add(1) })
	bg.Wait()

	assert.Equal(t, int32(2), ran.Load())

	bg.Close()
	assert.False(t, bg.Go("late", func(ctx context.Context) { ran.Add(1) }))
	assert.Equal(t, int32(2), ran.Load())
}

func TestBackground_CloseCancelsContext(t *testing.T) {
	bg := NewBackground(context.Background(), arbor.NewLogger())
	started := make(chan struct{})
	bg.Go("blocker", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	done := make(chan struct{})
	go func() {
		bg.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after cancelling context")
	}
}

func TestBackground_GoRacingClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		bg := NewBackground(context.Background(), arbor.NewLogger())

		var finished atomic.Int32
		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bg.Go("racer", func(ctx context.Context) { finished.Add(1) })
			}()
		}
		bg.Close()
		closedAt := finished.Load()
		wg.Wait()

		// Nothing accepted after Close may still be running
		assert.True(t, bg.Closed())
		assert.Equal(t, closedAt, finished.Load())
		assert.False(t, bg.Go("late", func(ctx context.Context) {}))
	}
}

func TestBackground_DetachIgnoresCallerButEndsOnClose(t *testing.T) {
	bg := NewBackground(context.Background(), arbor.NewLogger())

	type key struct{}
	caller, cancelCaller := context.WithCancel(context.WithValue(context.Background(), key{}, "v"))
	detached, release, err := bg.Detach(caller)
	require.NoError(t, err)

	cancelCaller()
	assert.NoError(t, detached.Err())
	assert.Equal(t, "v", detached.Value(key{}))

	closed := make(chan struct{})
	go func() {
		bg.Close()
		close(closed)
	}()

	select {
	case <-detached.Done():
	case <-time.After(time.Second):
		t.Fatal("detached context survived Close")
	}

	// Close waits for the detached work to be released
	select {
	case <-closed:
		t.Fatal("Close returned before release")
	case <-time.After(50 * time.Millisecond):
	}
	release()
	<-closed

	_, _, err = bg.Detach(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "agenthub.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[server]
port = 9000

[scheduler]
schedule = "*/10 * * * *"

[tasks.durations]
scrape = "1s"
`), 0644))

	yamlPath := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server:\n  host: 0.0.0.0\nretry:\n  max_attempts: 3\n"), 0644))

	cfg, err := LoadFromFiles(tomlPath, yamlPath)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "*/10 * * * *", cfg.Scheduler.Schedule)
	assert.Equal(t, "1s", cfg.Tasks.Durations["scrape"])
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 20, cfg.Fetcher.MaxItems)
}

func TestLoadFromFiles_EnvOverride(t *testing.T) {
	t.Setenv("AGENTHUB_SERVER_PORT", "7777")
	t.Setenv("AGENTHUB_LOG_OUTPUT", "stdout, file")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, []string{"stdout", "file"}, cfg.Logging.Output)

	ApplyFlagOverrides(cfg, 8080, "")
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromFiles_RejectsInvalidSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\nschedule = \"not a cron\"\n"), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		Name string `json:"name" validate:"required"`
	}

	err := ValidateStruct(req{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	assert.NoError(t, ValidateStruct(req{Name: "x"}))

	assert.Error(t, ValidateHTTPURL("url", "ftp://example.com"))
	assert.Error(t, ValidateHTTPURL("url", "/relative"))
	assert.NoError(t, ValidateHTTPURL("url", "https://example.com/feed"))
}

func TestDeepCloneConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	clone := DeepCloneConfig(cfg)

	clone.Tasks.Durations["scrape"] = "1ms"
	clone.Tracker.DefaultPlatforms[0] = "other"

	assert.Equal(t, "8s", cfg.Tasks.Durations["scrape"])
	assert.Equal(t, "weibo", cfg.Tracker.DefaultPlatforms[0])
}
