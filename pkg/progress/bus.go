// Package progress fans pipeline events out to per-job subscribers. Each
// subscriber owns a bounded queue; when it falls behind, the oldest queued
// event is dropped and a loss counter ticks. A slow consumer can therefore
// never block the scheduler, and the terminal Result/Error event, being the
// newest, is always the last thing a surviving subscriber receives.
package progress

import (
	"sync"
	"sync/atomic"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/types"
)

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventResult    EventType = "result"
	EventError     EventType = "error"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one entry in a job's progress stream.
type Event struct {
	JobID string    `json:"job_id"`
	Seq   uint64    `json:"seq"`
	Type  EventType `json:"type"`

	// Progress variant
	Percent int    `json:"percent,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`

	// Result variant
	Transcript *types.Transcript `json:"transcript,omitempty"`

	// Error variant
	ErrorKind string `json:"error_kind,omitempty"`
}

// Terminal reports whether this event closes the stream.
func (e Event) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

// DefaultQueueDepth is the per-subscriber queue bound.
const DefaultQueueDepth = 64

// Subscription is one consumer's view of a job stream. Read from C; it is
// closed after the terminal event is delivered or the subscription is
// cancelled.
type Subscription struct {
	C chan Event

	jobID string
	depth int
	mu    sync.Mutex
	done  bool
	loss  atomic.Uint64
}

// Lost reports how many events were dropped because this subscriber fell
// behind.
func (s *Subscription) Lost() uint64 { return s.loss.Load() }

// push enqueues without blocking, dropping the oldest queued event on a full
// queue. Events already handed to the channel preserve their relative order.
func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	for {
		select {
		case s.C <- ev:
			if ev.Terminal() {
				s.done = true
				close(s.C)
			}
			return
		default:
		}
		select {
		case <-s.C:
			s.loss.Add(1)
		default:
		}
	}
}

// cancel closes the subscription without a terminal event.
func (s *Subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.C)
	}
}

// Bus is the per-job event fan-out.
type Bus struct {
	mu        sync.Mutex
	subs      map[string][]*Subscription
	broadcast []*Subscription
	seqs      map[string]*uint64
	depth     int
	log       *logger.Logger
}

// NewBus creates a bus with the given per-subscriber queue depth
// (DefaultQueueDepth when <= 0).
func NewBus(queueDepth int) *Bus {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Bus{
		subs:  make(map[string][]*Subscription),
		seqs:  make(map[string]*uint64),
		depth: queueDepth,
		log:   logger.WithComponent("progress-bus"),
	}
}

// Subscribe registers a consumer for one job's events.
func (b *Bus) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		C:     make(chan Event, b.depth),
		jobID: jobID,
		depth: b.depth,
	}
	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], sub)
	b.mu.Unlock()
	return sub
}

// SubscribeBroadcast registers a consumer for the global channel carrying
// cross-job telemetry (janitor sweeps, shutdown notices).
func (b *Bus) SubscribeBroadcast() *Subscription {
	sub := &Subscription{
		C:     make(chan Event, b.depth),
		depth: b.depth,
	}
	b.mu.Lock()
	b.broadcast = append(b.broadcast, sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe drops a subscription. Dropping an already-released
// subscription is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	b.subs[sub.jobID] = removeSub(b.subs[sub.jobID], sub)
	if len(b.subs[sub.jobID]) == 0 {
		delete(b.subs, sub.jobID)
	}
	b.broadcast = removeSub(b.broadcast, sub)
	b.mu.Unlock()
	sub.cancel()
}

// Publish stamps the event with the job's next sequence number and fans it
// out. A terminal event releases every subscription for the job.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	// A heartbeat with no listeners must not resurrect sequence state for a
	// job whose stream already closed.
	if ev.Type == EventHeartbeat && len(b.subs[ev.JobID]) == 0 {
		b.mu.Unlock()
		return
	}
	seq, ok := b.seqs[ev.JobID]
	if !ok {
		seq = new(uint64)
		b.seqs[ev.JobID] = seq
	}
	*seq++
	ev.Seq = *seq

	targets := append([]*Subscription(nil), b.subs[ev.JobID]...)
	if ev.Terminal() {
		delete(b.subs, ev.JobID)
		delete(b.seqs, ev.JobID)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.push(ev)
	}
}

// PublishBroadcast fans a telemetry event out to broadcast subscribers.
func (b *Bus) PublishBroadcast(ev Event) {
	b.mu.Lock()
	targets := append([]*Subscription(nil), b.broadcast...)
	b.mu.Unlock()
	for _, sub := range targets {
		sub.push(ev)
	}
}

// SubscriberCount reports the number of active subscriptions for a job.
func (b *Bus) SubscriberCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

func removeSub(subs []*Subscription, target *Subscription) []*Subscription {
	for i, s := range subs {
		if s == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
