package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcrew/botcrew/internal/bus"
	"github.com/botcrew/botcrew/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

// newDetachedSession builds a session with no underlying connection,
// enough for registry buffering behavior.
func newDetachedSession(channelID, clientID string, log *logger.Logger) *Session {
	return NewSession(nil, channelID, clientID, "", nil, log)
}

func drain(s *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-s.send:
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestRegistryBroadcastReachesChannelSessions(t *testing.T) {
	log := testLogger(t)
	r := NewRegistry(log)

	a := newDetachedSession("ch-1", "client-a", log)
	b := newDetachedSession("ch-1", "client-b", log)
	other := newDetachedSession("ch-2", "client-c", log)
	r.Add(a)
	r.Add(b)
	r.Add(other)

	r.Broadcast("ch-1", []byte("frame"))

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(other))
	assert.Equal(t, 2, r.Count("ch-1"))
}

func TestRegistryEvictsFullSession(t *testing.T) {
	log := testLogger(t)
	r := NewRegistry(log)

	s := newDetachedSession("ch-1", "client-a", log)
	r.Add(s)

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, s.trySend([]byte("fill")))
	}
	r.Broadcast("ch-1", []byte("overflow"))

	assert.Equal(t, 0, r.Count("ch-1"))
}

func TestRegistryReplaceSameClientID(t *testing.T) {
	log := testLogger(t)
	r := NewRegistry(log)

	first := newDetachedSession("ch-1", "client-a", log)
	second := newDetachedSession("ch-1", "client-a", log)
	r.Add(first)
	r.Add(second)

	assert.Equal(t, 1, r.Count("ch-1"))

	// Removing the stale handle must not evict the replacement.
	r.Remove(first)
	assert.Equal(t, 1, r.Count("ch-1"))

	r.Remove(second)
	assert.Equal(t, 0, r.Count("ch-1"))
}

func TestBroadcastSurvivesClosedSession(t *testing.T) {
	log := testLogger(t)
	r := NewRegistry(log)

	closed := newDetachedSession("ch-1", "client-a", log)
	live := newDetachedSession("ch-1", "client-b", log)
	r.Add(closed)
	r.Add(live)

	// A reader shuts its session down before the handler removes it
	// from the registry; a broadcast landing in that window must not
	// panic the bus callback goroutine.
	closed.close()
	require.NotPanics(t, func() { r.Broadcast("ch-1", []byte("frame")) })

	assert.False(t, closed.trySend([]byte("late")))
	assert.Len(t, drain(live), 1)
}

func TestBroadcastSurvivesCloseAll(t *testing.T) {
	log := testLogger(t)
	r := NewRegistry(log)

	s := newDetachedSession("ch-1", "client-a", log)
	r.Add(s)
	r.CloseAll()

	require.NotPanics(t, func() { r.Broadcast("ch-1", []byte("frame")) })
	assert.Equal(t, 0, r.Count("ch-1"))
}

func TestAddReplacementClosesPreviousSafely(t *testing.T) {
	log := testLogger(t)
	r := NewRegistry(log)

	first := newDetachedSession("ch-1", "client-a", log)
	r.Add(first)

	second := newDetachedSession("ch-1", "client-a", log)
	require.NotPanics(t, func() {
		r.Add(second)
		r.Broadcast("ch-1", []byte("frame"))
	})

	assert.False(t, first.trySend([]byte("late")))
	assert.Len(t, drain(second), 1)
}

func TestListenerForwardsBusFrames(t *testing.T) {
	log := testLogger(t)
	b := bus.NewMemoryBus(log)
	defer b.Close()

	r := NewRegistry(log)
	s := newDetachedSession("ch-1", "client-a", log)
	r.Add(s)

	l := NewListener(b, r, log)
	require.NoError(t, l.Start())
	defer l.Stop()

	require.NoError(t, b.PublishChannel(context.Background(), "ch-1", []byte(`{"type":"message"}`)))

	assert.Eventually(t, func() bool {
		select {
		case <-s.send:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
