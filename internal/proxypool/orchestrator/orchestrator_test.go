package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"proxyfleet/internal/proxypool/model"
	"proxyfleet/internal/shared/events"
)

type stubSource struct {
	tag         string
	items       []*model.ProxyItem
	err         error
	fetchCalls  int
	mu          sync.Mutex
	released    []string
	releaseErr  error
	noRelease   bool
}

func (s *stubSource) Tag() string { return s.tag }

func (s *stubSource) Fetch(ctx context.Context, n int) ([]*model.ProxyItem, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.items) > n {
		return s.items[:n], nil
	}
	return s.items, nil
}

func (s *stubSource) Release(ctx context.Context, id string) error {
	if s.noRelease {
		panic("Release called on a source that should not implement it")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, id)
	return s.releaseErr
}

// releaseCapableSource vs plain: to test capability filtering we need a
// source type that does NOT implement ReleaseCapable at all.
type noReleaseSource struct {
	tag   string
	items []*model.ProxyItem
}

func (s *noReleaseSource) Tag() string { return s.tag }
func (s *noReleaseSource) Fetch(ctx context.Context, n int) ([]*model.ProxyItem, error) {
	return s.items, nil
}

func mkItems(n int, tag string) []*model.ProxyItem {
	out := make([]*model.ProxyItem, n)
	for i := range out {
		out[i] = &model.ProxyItem{ID: tag + string(rune('a'+i)), Source: tag}
	}
	return out
}

func TestReplenish_FallbackOrder_FirstSuccessWins(t *testing.T) {
	s1 := &stubSource{tag: "s1", err: errors.New("down")}
	s2 := &stubSource{tag: "s2", items: mkItems(3, "s2")}
	s3 := &stubSource{tag: "s3", items: mkItems(3, "s3")}

	bus := events.NewBus()
	failEvents := bus.Subscribe(events.SourceFailed)

	o := New(bus, s1, s2, s3)
	got, err := o.Replenish(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "s2", got[0].Source)

	require.Equal(t, 0, s3.fetchCalls, "s3 must not be consulted once s2 yields a batch")

	select {
	case ev := <-failEvents:
		require.Equal(t, "s1", ev.Source)
	default:
		t.Fatal("expected source.failed for s1")
	}
}

func TestReplenish_AllSourcesExhausted(t *testing.T) {
	s1 := &stubSource{tag: "s1", err: errors.New("down")}
	s2 := &stubSource{tag: "s2", items: nil}

	o := New(nil, s1, s2)
	_, err := o.Replenish(context.Background(), 5)
	require.ErrorIs(t, err, ErrAllSourcesExhausted)
}

func TestRelease_BroadcastsOnlyToCapableSources(t *testing.T) {
	capable := &stubSource{tag: "capable"}
	incapable := &noReleaseSource{tag: "incapable"}

	o := New(nil, capable, incapable)
	o.Release(context.Background(), "proxy-1")

	capable.mu.Lock()
	defer capable.mu.Unlock()
	require.Equal(t, []string{"proxy-1"}, capable.released)
}

func TestRelease_PerSourceFailureEmitsEventWithoutBlocking(t *testing.T) {
	failing := &stubSource{tag: "failing", releaseErr: errors.New("vendor rejected")}
	bus := events.NewBus()
	ch := bus.Subscribe(events.SourceReleaseFailed)

	o := New(bus, failing)
	o.Release(context.Background(), "proxy-1") // must not panic/block

	select {
	case ev := <-ch:
		require.Equal(t, "failing", ev.Source)
	default:
		t.Fatal("expected source.release.failed event")
	}
}

func TestHealth_ProbesEverySourceIndependently(t *testing.T) {
	up := &stubSource{tag: "up", items: mkItems(1, "up")}
	down := &stubSource{tag: "down", err: errors.New("refused")}

	o := New(nil, up, down)
	results := o.Health(context.Background())

	require.Len(t, results, 2)
	byTag := map[string]SourceHealth{}
	for _, r := range results {
		byTag[r.SourceTag] = r
	}
	require.True(t, byTag["up"].Healthy)
	require.False(t, byTag["down"].Healthy)
	require.NotEmpty(t, byTag["down"].Error)
}
