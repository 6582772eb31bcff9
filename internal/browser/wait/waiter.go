// Package wait implements the poll-until-true loop behind every wait helper.
package wait

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
)

const (
	// DefaultTimeout applies when neither the caller nor the configuration supplies one.
	DefaultTimeout = 5 * time.Second
	// DefaultInterval is the poll interval shared by all higher-level wait helpers.
	DefaultInterval = 100 * time.Millisecond
)

// Predicate reports whether the awaited condition holds. Returned errors are
// treated as "not yet", never as failure.
type Predicate func(ctx context.Context) (bool, error)

// Waiter runs poll loops. The default timeout may be changed at any time and
// applies to subsequent waits that do not specify their own.
type Waiter struct {
	defaultTimeout atomic.Int64
	logger         *zap.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a waiter. A non-positive defaultTimeout selects DefaultTimeout.
func New(defaultTimeout time.Duration, logger *zap.Logger) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Waiter{
		logger: logger.Named("waiter"),
		now:    time.Now,
		sleep:  time.Sleep,
	}
	w.SetDefaultTimeout(defaultTimeout)
	return w
}

// DefaultTimeout returns the timeout used when a wait does not specify one.
func (w *Waiter) DefaultTimeout() time.Duration {
	return time.Duration(w.defaultTimeout.Load())
}

// SetDefaultTimeout overrides the default timeout.
func (w *Waiter) SetDefaultTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	w.defaultTimeout.Store(int64(d))
}

// WaitUsing blocks until predicate reports true or timeout elapses.
//
// The predicate is first evaluated one interval after the call. A timeout <= 0
// selects the default. message may contain one %s verb, which receives the
// timeout in seconds. The wait cannot be cancelled: ctx is only handed to the
// predicate.
func (w *Waiter) WaitUsing(ctx context.Context, timeout, interval time.Duration, predicate Predicate, message string) error {
	if timeout <= 0 {
		timeout = w.DefaultTimeout()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	w.sleep(interval)
	started := w.now()

	for attempt := 1; ; attempt++ {
		ok, err := predicate(ctx)
		if err != nil {
			w.logger.Debug("Wait predicate failed, retrying.", zap.Int("attempt", attempt), zap.Error(err))
		} else if ok {
			return nil
		}

		if elapsed := w.now().Sub(started); elapsed > timeout {
			return &schemas.TimeoutError{
				Message: timeoutMessage(message, timeout),
				Elapsed: elapsed,
			}
		}

		w.sleep(interval)
	}
}

func timeoutMessage(message string, timeout time.Duration) string {
	seconds := formatSeconds(timeout)
	if message == "" {
		return fmt.Sprintf("Waited %s seconds for callback.", seconds)
	}
	if !strings.Contains(message, "%s") {
		return strings.ReplaceAll(message, "%%", "%")
	}
	return fmt.Sprintf(message, seconds)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// FormatTimeoutMessage appends the awaited subject to a message template,
// escaping any % in the subject so it survives the later Sprintf.
func FormatTimeoutMessage(template, expected string) string {
	return template + " [" + strings.ReplaceAll(expected, "%", "%%") + "]."
}
