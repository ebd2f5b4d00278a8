package audiochannel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *statusRecorder) OnAudioStatusChanged(status Status) {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
}

func (s *statusRecorder) snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func TestNotifierCoalescesBeforeStart(t *testing.T) {
	n := NewNotifier(4)
	rec := &statusRecorder{}
	n.Subscribe(rec)

	n.Publish(Status{AnyActive: true})
	n.Publish(Status{AnyActive: true, TelephonyActive: true})
	require.NoError(t, n.Start())
	defer n.Stop()

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Status{AnyActive: true, TelephonyActive: true}, rec.snapshot()[0])
}

func TestNotifierSkipsEqualStatus(t *testing.T) {
	n := NewNotifier(4)
	rec := &statusRecorder{}
	n.Subscribe(rec)
	require.NoError(t, n.Start())

	n.Publish(Status{ForceSpeaker: true})
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	n.Publish(Status{ForceSpeaker: true})
	n.Publish(Status{})
	n.Stop()

	got := rec.snapshot()
	require.NotEmpty(t, got)
	assert.Equal(t, Status{}, got[len(got)-1], "the latest status is always delivered")
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i])
	}
}

func TestRegistryPublishesStatus(t *testing.T) {
	n := NewNotifier(4)
	rec := &statusRecorder{}
	n.Subscribe(StatusObserverFunc(rec.OnAudioStatusChanged))
	require.NoError(t, n.Start())

	r := NewRegistry(Policy{}, n)
	id, _ := register(r, 1, KindTelephony, true)
	assert.Equal(t, Status{TelephonyActive: true, AnyActive: true}, n.Latest())
	r.UnregisterAgent(id)
	assert.Equal(t, Status{}, n.Latest())
	n.Stop()

	got := rec.snapshot()
	require.NotEmpty(t, got)
	assert.Equal(t, Status{}, got[len(got)-1])
}

func TestStatusLocal(t *testing.T) {
	s := Status{TelephonyActive: true, AnyActive: true, ForceSpeaker: true}
	assert.Equal(t, ChildStatus{TelephonyActive: true, AnyActive: true}, s.Local())
}
