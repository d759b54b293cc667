package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeByKind_OnlyMatchingKindDelivered(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(PoolInitialized)

	b.Publish(New(PoolReplenished))
	b.Publish(New(PoolInitialized))

	select {
	case ev := <-ch:
		require.Equal(t, PoolInitialized, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestBus_SubscribeAll_ReceivesEveryKind(t *testing.T) {
	b := NewBus()
	ch := b.SubscribeAll()

	b.Publish(New(PoolInitialized))
	b.Publish(New(SourceFailed).WithSource("oculus"))

	first := <-ch
	require.Equal(t, PoolInitialized, first.Kind)
	second := <-ch
	require.Equal(t, SourceFailed, second.Kind)
	require.Equal(t, "oculus", second.Source)
}

func TestBus_Publish_NeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBus()
	_ = b.Subscribe(PoolReplenished) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(New(PoolReplenished))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
	require.Greater(t, b.Dropped(), int64(0))
}
