package runner

import (
	"sync"
	"time"
)

// DefaultWatchInterval is how often the liveness of a run's consumer is polled.
const DefaultWatchInterval = 250 * time.Millisecond

// Liveness reports whether the consumer of a run is still connected.
type Liveness interface {
	IsConnected() bool
}

// LivenessFunc adapts a function to Liveness.
type LivenessFunc func() bool

// IsConnected implements Liveness.
func (f LivenessFunc) IsConnected() bool { return f() }

// watcher polls a Liveness and fires onDisconnect once when it reports false.
type watcher struct {
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startWatcher(l Liveness, interval time.Duration, onDisconnect func()) *watcher {
	w := &watcher{stopCh: make(chan struct{}), done: make(chan struct{})}

	if l == nil {
		close(w.done)
		return w
	}

	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	go func() {
		defer close(w.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				if !l.IsConnected() {
					onDisconnect()
					return
				}
			}
		}
	}()

	return w
}

// stop ends polling and waits for the goroutine. Safe to call more than once
// and from any goroutine except the watcher's own.
func (w *watcher) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}
