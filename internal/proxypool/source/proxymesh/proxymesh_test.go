package proxymesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"proxyfleet/internal/proxypool/model"
	"proxyfleet/internal/proxypool/source"
)

func TestFetch_ReturnsExactlyOne_RegardlessOfCount(t *testing.T) {
	s := New(Config{Host: "us-wa.proxymesh.com", Port: 31280})

	for _, n := range []int{1, 5, 50} {
		items, err := s.Fetch(context.Background(), n)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, "us-wa.proxymesh.com", items[0].Endpoint.Host)
	}
}

func TestRelease_DeactivatesAndFetchFails(t *testing.T) {
	s := New(Config{Host: "h", Port: 1})

	require.NoError(t, s.Release(context.Background(), "anything"))

	_, err := s.Fetch(context.Background(), 1)
	require.Error(t, err)
	var fe *source.FetchError
	require.ErrorAs(t, err, &fe)
}

func TestReactivate_RestoresFetching(t *testing.T) {
	s := New(Config{Host: "h", Port: 1})
	require.NoError(t, s.Release(context.Background(), "x"))

	_, err := s.Fetch(context.Background(), 1)
	require.Error(t, err)

	s.Reactivate()
	items, err := s.Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestFetch_RepeatedCalls_NeverProduceDuplicateIDs(t *testing.T) {
	s := New(Config{Host: "us-wa.proxymesh.com", Port: 31280})

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		items, err := s.Fetch(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.False(t, seen[items[0].ID], "duplicate id across fetches: %s", items[0].ID)
		seen[items[0].ID] = true
	}
}

func TestValidate_ChecksSourceTag(t *testing.T) {
	s := New(Config{Host: "h", Port: 1})
	require.True(t, s.Validate(&model.ProxyItem{Source: tag}))
	require.False(t, s.Validate(&model.ProxyItem{Source: "other"}))
}
