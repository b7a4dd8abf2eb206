package analysis

import (
	"sort"
	"sync"
	"time"

	"github.com/darkace1998/FlowSentry/internal/logging"
)

// Sink receives alerts whose content changed. Implementations may block; the
// board calls them from its own delivery loop, never from Raise.
type Sink interface {
	Name() string
	Notify(a Alert) error
}

// alertQueueSize bounds pending deliveries. Raise drops when full.
const alertQueueSize = 64

// AlertBoard keeps one slot per alert ID and forwards changed alerts to the
// configured sinks. Raising an alert whose content matches the current slot
// only bumps its counter.
type AlertBoard struct {
	mu    sync.RWMutex
	slots map[string]*Alert
	sinks []Sink
	now   func() time.Time

	queue   chan Alert
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped uint64
	log     *logging.Logger
}

// NewAlertBoard creates a board delivering to sinks. Nothing is delivered
// until Start is called.
func NewAlertBoard(sinks ...Sink) *AlertBoard {
	return &AlertBoard{
		slots: make(map[string]*Alert),
		sinks: sinks,
		now:   time.Now,
		queue: make(chan Alert, alertQueueSize),
		stop:  make(chan struct{}),
		log:   logging.Default().Named("alerts"),
	}
}

// AddSink registers an additional sink. It must be called before Start.
func (b *AlertBoard) AddSink(s Sink) {
	b.sinks = append(b.sinks, s)
}

// Raise stores the alert in slot id. It returns true when the visible content
// changed, in which case the alert is queued for delivery.
func (b *AlertBoard) Raise(id string, sev Severity, title, message string) bool {
	now := b.now()
	next := Alert{ID: id, Severity: sev, Title: title, Message: message}

	b.mu.Lock()
	cur, ok := b.slots[id]
	if ok && cur.sameContent(next) {
		cur.Count++
		cur.LastRaised = now
		b.mu.Unlock()
		return false
	}

	next.Count = 1
	next.FirstRaised = now
	next.LastRaised = now
	if ok {
		next.Count = cur.Count + 1
		next.FirstRaised = cur.FirstRaised
	}
	b.slots[id] = &next
	b.mu.Unlock()

	select {
	case b.queue <- next:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		b.log.Warn("delivery queue full, dropping alert %q", id)
	}
	return true
}

// Active returns a copy of the current alerts, most severe first, then most
// recently raised.
func (b *AlertBoard) Active() []Alert {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Alert, 0, len(b.slots))
	for _, a := range b.slots {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Severity != result[j].Severity {
			return result[i].Severity > result[j].Severity
		}
		return result[i].LastRaised.After(result[j].LastRaised)
	})
	return result
}

// Get returns the alert in slot id.
func (b *AlertBoard) Get(id string) (Alert, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.slots[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// Dismiss clears slot id. It reports whether the slot existed.
func (b *AlertBoard) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.slots[id]; !ok {
		return false
	}
	delete(b.slots, id)
	return true
}

// Dropped returns the number of alerts discarded because the queue was full.
func (b *AlertBoard) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Start launches the delivery loop in the background. Queued alerts are
// delivered to the sinks until Stop is called.
func (b *AlertBoard) Start() {
	b.wg.Add(1)
	go b.run()
}

func (b *AlertBoard) run() {
	defer b.wg.Done()

	for {
		select {
		case a := <-b.queue:
			b.deliver(a)
		case <-b.stop:
			// Flush what is already queued.
			for {
				select {
				case a := <-b.queue:
					b.deliver(a)
				default:
					return
				}
			}
		}
	}
}

// Stop signals the delivery loop to flush and exit, and waits for it.
func (b *AlertBoard) Stop() {
	close(b.stop)
	b.wg.Wait()
}

func (b *AlertBoard) deliver(a Alert) {
	for _, s := range b.sinks {
		if err := s.Notify(a); err != nil {
			b.log.Error("sink %s failed for alert %q: %v", s.Name(), a.ID, err)
		}
	}
}
