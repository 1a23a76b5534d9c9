package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/observability"
)

// DefaultKeepaliveInterval is the keepalive period the server uses unless
// configured otherwise.
const DefaultKeepaliveInterval = 15 * time.Second

// Producer yields the steps of a run one at a time. Next returns io.EOF once
// the run has no more steps. Implementations must honour ctx cancellation.
type Producer interface {
	Next(ctx context.Context) (core.Step, error)
}

// Event is one item of the coordinated stream: either a step or a keepalive.
type Event struct {
	Step      core.Step
	Keepalive bool
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Logger  logging.Logger
	Metrics *observability.Metrics
	// Buffer is the capacity of the event channel.
	Buffer int
}

// Coordinator merges a Producer with keepalive ticks.
type Coordinator struct {
	producer Producer
	interval time.Duration
	opts     CoordinatorOptions

	mu  sync.Mutex
	err error
}

// NewCoordinator creates a coordinator. An interval <= 0 disables keepalives.
func NewCoordinator(p Producer, interval time.Duration, optFns ...func(o *CoordinatorOptions)) *Coordinator {
	opts := CoordinatorOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Coordinator{producer: p, interval: interval, opts: opts}
}

type fetchResult struct {
	step core.Step
	err  error
}

// Run starts the coordination loop. The returned channel is closed after the
// producer is exhausted, a terminal step was delivered, or ctx is cancelled;
// in every case the outstanding fetch has returned by then. Values carried
// by ctx reach the producer unchanged.
func (c *Coordinator) Run(ctx context.Context) <-chan Event {
	out := make(chan Event, c.opts.Buffer)

	go func() {
		defer close(out)

		fetchCtx, cancelFetch := context.WithCancel(ctx)
		defer cancelFetch()

		fetch := func() <-chan fetchResult {
			ch := make(chan fetchResult, 1)
			go func() {
				s, err := c.producer.Next(fetchCtx)
				ch <- fetchResult{step: s, err: err}
			}()
			return ch
		}

		var tick <-chan time.Time
		var timer *time.Timer
		if c.interval > 0 {
			timer = time.NewTimer(c.interval)
			defer timer.Stop()
			tick = timer.C
		}

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		pending := fetch()

		for {
			select {
			case res := <-pending:
				pending = nil

				if res.err != nil {
					c.finish(res.err)
					return
				}

				if !send(Event{Step: res.step}) {
					return
				}

				if core.IsTerminal(res.step) {
					return
				}

				if timer != nil {
					timer.Reset(c.interval)
				}

				pending = fetch()

			case <-tick:
				c.opts.Metrics.Keepalive()
				c.opts.Logger.Debug("stream.keepalive")

				if !send(Event{Keepalive: true}) {
					cancelFetch()
					<-pending
					return
				}

				timer.Reset(c.interval)

			case <-ctx.Done():
				cancelFetch()
				<-pending
				return
			}
		}
	}()

	return out
}

func (c *Coordinator) finish(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return
	}

	c.opts.Logger.Warn("stream.producer.failed", "error", err.Error())

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Err returns the producer failure that ended the stream, if any. End of
// stream and cancellation are not failures. Only meaningful once the event
// channel has been closed.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// ChanProducer adapts a step channel to a Producer. A closed channel ends
// the stream.
type ChanProducer struct {
	ch <-chan core.Step
}

// NewChanProducer wraps ch.
func NewChanProducer(ch <-chan core.Step) *ChanProducer { return &ChanProducer{ch: ch} }

// Next implements Producer.
func (p *ChanProducer) Next(ctx context.Context) (core.Step, error) {
	select {
	case s, ok := <-p.ch:
		if !ok {
			return nil, io.EOF
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProducerFunc adapts a function to a Producer.
type ProducerFunc func(ctx context.Context) (core.Step, error)

// Next implements Producer.
func (f ProducerFunc) Next(ctx context.Context) (core.Step, error) { return f(ctx) }
