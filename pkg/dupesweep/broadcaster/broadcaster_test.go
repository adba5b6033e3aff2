package broadcaster

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	require.NotNil(t, s1)
	require.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(types.ScanProgress{Phase: types.PhaseHashing, FilesDone: 3})

	for _, s := range []*Subscriber{s1, s2} {
		got := <-s.Events
		assert.Equal(t, int64(3), got.FilesDone)
	}
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()

	for i := range bufferSize + 50 {
		b.Publish(types.ScanProgress{FilesDone: int64(i)})
	}

	var last types.ScanProgress
	for len(sub.Events) > 0 {
		last = <-sub.Events
	}
	assert.Equal(t, int64(bufferSize+49), last.FilesDone)
}

func TestLateSubscriberGetsLastUpdate(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish(types.ScanProgress{Phase: types.PhaseClustering})
	sub := b.Subscribe()

	got := <-sub.Events
	assert.Equal(t, types.PhaseClustering, got.Phase)

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, types.PhaseClustering, last.Phase)
}

func TestUnsubscribeAndClose(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	other := b.Subscribe()

	b.Unsubscribe(sub.ID)
	_, open := <-sub.Events
	assert.False(t, open)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Close()
	_, open = <-other.Events
	assert.False(t, open)
	assert.Nil(t, b.Subscribe())

	// Publishing after close is a no-op.
	b.Publish(types.ScanProgress{})
	b.Close()
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				b.Publish(types.ScanProgress{Phase: types.PhaseHashing})
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, len(sub.Events), bufferSize)
}
