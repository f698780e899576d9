package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcrew/botcrew/internal/common/logger"
)

func newTestBus(t *testing.T) *MemoryBus {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)
	return NewMemoryBus(log)
}

type frameCollector struct {
	mu     sync.Mutex
	frames map[string][]string
	ch     chan struct{}
}

func newFrameCollector() *frameCollector {
	return &frameCollector{frames: make(map[string][]string), ch: make(chan struct{}, 16)}
}

func (f *frameCollector) handle(channelID string, payload []byte) {
	f.mu.Lock()
	f.frames[channelID] = append(f.frames[channelID], string(payload))
	f.mu.Unlock()
	f.ch <- struct{}{}
}

func (f *frameCollector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d of %d", i+1, n)
		}
	}
}

func (f *frameCollector) get(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames[channelID]...)
}

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := newTestBus(t)
	defer b.Close()

	collector := newFrameCollector()
	_, err := b.SubscribeChannels(collector.handle)
	require.NoError(t, err)

	require.NoError(t, b.PublishChannel(context.Background(), "ch-1", []byte(`{"type":"message"}`)))
	require.NoError(t, b.PublishChannel(context.Background(), "ch-2", []byte(`{"type":"agent_status"}`)))
	collector.wait(t, 2)

	assert.Equal(t, []string{`{"type":"message"}`}, collector.get("ch-1"))
	assert.Equal(t, []string{`{"type":"agent_status"}`}, collector.get("ch-2"))
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)
	defer b.Close()

	collector := newFrameCollector()
	sub, err := b.SubscribeChannels(collector.handle)
	require.NoError(t, err)
	assert.True(t, sub.IsValid())

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, b.PublishChannel(context.Background(), "ch-1", []byte("x")))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, collector.get("ch-1"))
}

func TestMemoryBusClosedRejectsPublish(t *testing.T) {
	b := newTestBus(t)
	b.Close()

	assert.False(t, b.IsConnected())
	assert.Error(t, b.PublishChannel(context.Background(), "ch-1", []byte("x")))
	_, err := b.SubscribeChannels(func(string, []byte) {})
	assert.Error(t, err)
}

func TestSubjectForChannelRoundTrip(t *testing.T) {
	subject := SubjectForChannel("abc-123")
	assert.Equal(t, "ws.channel.abc-123", subject)

	id, ok := ChannelFromSubject(subject)
	require.True(t, ok)
	assert.Equal(t, "abc-123", id)

	_, ok = ChannelFromSubject("delivery.jobs")
	assert.False(t, ok)
	_, ok = ChannelFromSubject("ws.channel.")
	assert.False(t, ok)
}
