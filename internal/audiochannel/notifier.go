package audiochannel

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/logging"
	"github.com/bmndc/nokia-leo-sub000/internal/workqueue"
)

// Status is the process-wide channel activity summary broadcast to
// observers after registry mutations.
type Status struct {
	TelephonyActive       bool `json:"telephony_active"`
	ContentOrNormalActive bool `json:"content_or_normal_active"`
	AnyActive             bool `json:"any_active"`
	ForceSpeaker          bool `json:"force_speaker"`
}

// Local drops the fields that are not reported by child processes.
func (s Status) Local() ChildStatus {
	return ChildStatus{
		TelephonyActive:       s.TelephonyActive,
		ContentOrNormalActive: s.ContentOrNormalActive,
		AnyActive:             s.AnyActive,
	}
}

// StatusObserver receives status broadcasts on the notifier goroutine.
type StatusObserver interface {
	OnAudioStatusChanged(Status)
}

// StatusObserverFunc adapts a function to StatusObserver.
type StatusObserverFunc func(Status)

func (f StatusObserverFunc) OnAudioStatusChanged(s Status) { f(s) }

// Notifier delivers status broadcasts off the coordinating goroutine.
// Bursts of publishes collapse into one delivery of the latest status, and
// a status equal to the last delivered one is not repeated.
type Notifier struct {
	mu        sync.Mutex
	observers []StatusObserver
	latest    Status
	pending   bool
	last      Status
	delivered bool

	worker *workqueue.Worker[struct{}]
	logger *zerolog.Logger
}

// NewNotifier creates a stopped notifier.
func NewNotifier(queueSize int) *Notifier {
	n := &Notifier{logger: logging.GetSubsystemLogger("audio-status-notifier")}
	n.worker = workqueue.NewWorker("audio-status", queueSize, func(struct{}) { n.flush() })
	return n
}

// Start launches the delivery goroutine and flushes anything published
// before it.
func (n *Notifier) Start() error {
	if err := n.worker.Start(); err != nil {
		return err
	}
	n.mu.Lock()
	pending := n.pending
	n.mu.Unlock()
	if pending {
		n.worker.Submit(struct{}{})
	}
	return nil
}

// Stop delivers the pending status, if any, and stops the goroutine.
func (n *Notifier) Stop() {
	n.worker.Stop(true)
}

// Subscribe adds an observer. Observers are never removed; they filter on
// their own side.
func (n *Notifier) Subscribe(o StatusObserver) {
	n.mu.Lock()
	n.observers = append(n.observers, o)
	n.mu.Unlock()
}

// Publish records status as the latest and schedules a delivery unless one
// is already scheduled.
func (n *Notifier) Publish(status Status) {
	n.mu.Lock()
	n.latest = status
	if n.pending {
		n.mu.Unlock()
		return
	}
	n.pending = true
	n.mu.Unlock()

	if !n.worker.IsRunning() {
		return
	}
	if !n.worker.Submit(struct{}{}) {
		// A full queue already holds a flush that will read latest.
		n.logger.Debug().Msg("status flush already queued")
	}
}

// Latest returns the most recently published status.
func (n *Notifier) Latest() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latest
}

func (n *Notifier) flush() {
	n.mu.Lock()
	if !n.pending {
		n.mu.Unlock()
		return
	}
	n.pending = false
	status := n.latest
	if n.delivered && status == n.last {
		n.mu.Unlock()
		return
	}
	n.last = status
	n.delivered = true
	observers := make([]StatusObserver, len(n.observers))
	copy(observers, n.observers)
	n.mu.Unlock()

	statusBroadcastsTotal.Inc()
	n.logger.Debug().
		Bool("telephony", status.TelephonyActive).
		Bool("content_or_normal", status.ContentOrNormalActive).
		Bool("any", status.AnyActive).
		Bool("force_speaker", status.ForceSpeaker).
		Msg("broadcasting audio status")
	for _, o := range observers {
		o.OnAudioStatusChanged(status)
	}
}
