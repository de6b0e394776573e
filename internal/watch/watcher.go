// File: internal/watch/watcher.go

// Package watch tails an application log and feeds detected failures into
// the healing pipeline. Multi-line error bursts (tracebacks, tool error
// blocks) are buffered and flushed as one incident.
package watch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/classify"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

// newEntryRegex marks the start of a distinct log entry. A buffered error
// burst ends when one of these appears.
var newEntryRegex = regexp.MustCompile(`^(\d{4}[-/]\d{2}[-/]\d{2}|\{.*"ts":|INFO|WARN|ERROR|DEBUG)`)

// errorStartRegex marks lines that begin an error burst worth healing.
var errorStartRegex = regexp.MustCompile(`(Traceback \(most recent call last\)|^Error:|fatal:|UNREACHABLE!|ERROR!|\berror\b.*:)`)

// defaultFlushMillis is the quiet period that ends a burst when no
// terminating entry arrives.
const defaultFlushMillis = 200

// Watcher follows one log file and emits a DetectedError per error burst.
type Watcher struct {
	logger     *zap.Logger
	cfg        config.WatchConfig
	classifier *classify.Classifier
	target     schemas.TargetKind
	errorChan  chan<- schemas.DetectedError
}

// NewWatcher builds a watcher for the configured log path. Detected errors
// are sent on errorChan; the receiver owns healing them.
func NewWatcher(logger *zap.Logger, cfg config.WatchConfig, classifier *classify.Classifier, errorChan chan<- schemas.DetectedError) (*Watcher, error) {
	if cfg.LogPath == "" {
		return nil, fmt.Errorf("watch.log_path must be configured")
	}
	target := schemas.TargetKind(cfg.Target)
	if target == "" {
		target = schemas.TargetPython
	}
	return &Watcher{
		logger:     logger.Named("watcher"),
		cfg:        cfg,
		classifier: classifier,
		target:     target,
		errorChan:  errorChan,
	}, nil
}

// Start begins tailing from the end of the file and returns immediately;
// the monitor loop runs until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("starting log watcher",
		zap.String("log_path", w.cfg.LogPath),
		zap.String("target", string(w.target)))

	t, err := tail.TailFile(w.cfg.LogPath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}

	go w.monitorLoop(ctx, t)
	return nil
}

// monitorLoop buffers lines belonging to one error burst. A burst ends
// when a new distinct log entry appears or the flush timer fires.
func (w *Watcher) monitorLoop(ctx context.Context, t *tail.Tail) {
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	flushAfter := time.Duration(w.cfg.FlushMillis) * time.Millisecond
	if flushAfter <= 0 {
		flushAfter = defaultFlushMillis * time.Millisecond
	}

	var burst []string
	timeout := time.NewTimer(flushAfter)
	if !timeout.Stop() {
		<-timeout.C
	}

	flush := func() {
		if len(burst) == 0 {
			return
		}
		lines := make([]string, len(burst))
		copy(lines, burst)
		burst = nil
		w.dispatch(ctx, lines)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			w.logger.Info("stopping log watcher")
			return

		case line, ok := <-t.Lines:
			if !ok {
				flush()
				w.logger.Info("log tailer channel closed")
				return
			}
			if line.Err != nil {
				w.logger.Warn("error reading log file", zap.Error(line.Err))
				continue
			}

			text := line.Text
			if len(burst) > 0 && newEntryRegex.MatchString(text) && !errorStartRegex.MatchString(text) {
				flush()
				if !timeout.Stop() {
					select {
					case <-timeout.C:
					default:
					}
				}
			}

			if errorStartRegex.MatchString(text) || len(burst) > 0 {
				burst = append(burst, text)
				timeout.Reset(flushAfter)
			}

		case <-timeout.C:
			flush()
		}
	}
}

// dispatch classifies one burst and hands it to the healer channel.
func (w *Watcher) dispatch(ctx context.Context, lines []string) {
	output := strings.Join(lines, "\n")

	detected := w.classifier.FromOutput(w.target, "", "", output, 1)
	if detected == nil {
		return
	}

	w.logger.Info("error burst detected in watched log",
		zap.String("kind", string(detected.Kind)),
		zap.Int("lines", len(lines)))

	select {
	case w.errorChan <- *detected:
	case <-ctx.Done():
		w.logger.Warn("context cancelled while dispatching detected error")
	}
}
