// File: internal/watch/watcher_test.go
package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

func newTestWatcher(t *testing.T, cfg config.WatchConfig, ch chan schemas.DetectedError) *Watcher {
	t.Helper()
	logger := zap.NewNop()
	w, err := NewWatcher(logger, cfg, classify.NewClassifier(logger), ch)
	require.NoError(t, err)
	return w
}

func TestNewWatcherRequiresLogPath(t *testing.T) {
	t.Parallel()
	logger := zap.NewNop()

	_, err := NewWatcher(logger, config.WatchConfig{}, classify.NewClassifier(logger), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch.log_path")
}

func TestNewWatcherDefaultsTarget(t *testing.T) {
	t.Parallel()
	w := newTestWatcher(t, config.WatchConfig{LogPath: "/var/log/app.log"}, nil)
	assert.Equal(t, schemas.TargetPython, w.target)

	w = newTestWatcher(t, config.WatchConfig{LogPath: "/var/log/app.log", Target: "terraform"}, nil)
	assert.Equal(t, schemas.TargetTerraform, w.target)
}

func TestDispatchSendsClassifiedBurst(t *testing.T) {
	t.Parallel()
	ch := make(chan schemas.DetectedError, 1)
	w := newTestWatcher(t, config.WatchConfig{LogPath: "/var/log/app.log"}, ch)

	w.dispatch(context.Background(), []string{
		"Traceback (most recent call last):",
		`  File "app.py", line 3, in <module>`,
		"    import requests",
		"ModuleNotFoundError: No module named 'requests'",
	})

	select {
	case detected := <-ch:
		assert.Equal(t, schemas.ErrorKindDependency, detected.Kind)
		assert.Equal(t, 3, detected.Location.Line)
	default:
		t.Fatal("expected a detected error on the channel")
	}
}

// dispatch must not block forever when the receiver is gone.
func TestDispatchRespectsCancellation(t *testing.T) {
	t.Parallel()
	ch := make(chan schemas.DetectedError) // unbuffered, nobody receiving
	w := newTestWatcher(t, config.WatchConfig{LogPath: "/var/log/app.log"}, ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.dispatch(ctx, []string{"Error: something broke"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked despite cancelled context")
	}
}

func TestBurstBoundaryRegexes(t *testing.T) {
	t.Parallel()

	assert.True(t, newEntryRegex.MatchString("2026-08-27 10:00:01 INFO started"))
	assert.True(t, newEntryRegex.MatchString(`{"level":"info","ts":1756288801}`))
	assert.True(t, newEntryRegex.MatchString("INFO all good"))
	assert.False(t, newEntryRegex.MatchString("    import requests"))

	assert.True(t, errorStartRegex.MatchString("Traceback (most recent call last):"))
	assert.True(t, errorStartRegex.MatchString("fatal: [web1]: FAILED!"))
	assert.True(t, errorStartRegex.MatchString("web1 | UNREACHABLE! => ..."))
	assert.False(t, errorStartRegex.MatchString("request served in 12ms"))
}
