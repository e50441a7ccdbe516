package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvWithin[T any](t *testing.T, ch <-chan T, d time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatalf("timed out after %v waiting for value", d)
		panic("unreachable")
	}
}

func requireNoValue[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v", v)
	case <-time.After(d):
	}
}

func TestSource_LatestBeforePublish(t *testing.T) {
	s := NewSource[int]()
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestSource_PublishUpdatesLatest(t *testing.T) {
	s := NewSource[int]()
	s.Publish(7)

	v, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestSource_SubscribeReplaysLast(t *testing.T) {
	s := NewSource[string]()
	s.Publish("early")

	ch, cancel := s.Subscribe()
	defer cancel()

	assert.Equal(t, "early", recvWithin(t, ch, time.Second))
}

func TestSource_FanOut(t *testing.T) {
	s := NewSource[int]()

	a, cancelA := s.Subscribe()
	defer cancelA()
	b, cancelB := s.Subscribe()
	defer cancelB()

	s.Publish(1)

	assert.Equal(t, 1, recvWithin(t, a, time.Second))
	assert.Equal(t, 1, recvWithin(t, b, time.Second))
}

func TestDistinctSource_SuppressesConsecutiveDuplicates(t *testing.T) {
	s := NewDistinctSource(func(a, b string) bool { return a == b })

	ch, cancel := s.Subscribe()
	defer cancel()

	require.True(t, s.Publish("abc"))
	require.False(t, s.Publish("abc"))
	require.True(t, s.Publish("xyz"))
	require.True(t, s.Publish("abc"))

	assert.Equal(t, "abc", recvWithin(t, ch, time.Second))
	assert.Equal(t, "xyz", recvWithin(t, ch, time.Second))
	assert.Equal(t, "abc", recvWithin(t, ch, time.Second))
	requireNoValue(t, ch, 50*time.Millisecond)
}

func TestSource_SlowSubscriberConflates(t *testing.T) {
	s := NewSource[int]()

	ch, cancel := s.Subscribe()
	defer cancel()

	// Publish more than the buffer holds without consuming; Publish must
	// not block, and the newest value must survive.
	for i := 0; i < subscriberBuffer*3; i++ {
		s.Publish(i)
	}

	var last int
	for {
		select {
		case v := <-ch:
			last = v
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer*3-1, last)
}

func TestSource_CancelIsIdempotent(t *testing.T) {
	s := NewSource[int]()
	_, cancel := s.Subscribe()
	cancel()
	cancel()
	s.Publish(1)
}
