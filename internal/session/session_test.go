package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"city-atlas/internal/catalog"
	"city-atlas/internal/storage"
	"city-atlas/internal/view"
)

func opener(b storage.Backend, opened *[]string) Opener {
	store := catalog.NewStore([]catalog.City{{ID: catalog.IntID(1), Name: "Москва"}})
	return func(ctx context.Context, id, ip string) (*view.Tab, error) {
		if id == "bad" {
			return nil, errors.New("refused")
		}
		*opened = append(*opened, id+"@"+ip)
		return view.NewTab(ctx, b, store, view.TabOptions{ID: id})
	}
}

func TestRegistryReusesTabs(t *testing.T) {
	var opened []string
	r := NewRegistry(time.Minute, opener(storage.NewMemory(), &opened))
	defer r.Close()

	a1, err := r.Get("a", "10.0.0.1")
	require.NoError(t, err)
	a2, err := r.Get("a", "10.0.0.2")
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, []string{"a@10.0.0.1"}, opened)

	_, err = r.Get("bad", "")
	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.Same(t, a1, got)
	_, ok = r.Lookup("b")
	assert.False(t, ok)
}

func TestRegistryDropClosesTab(t *testing.T) {
	var opened []string
	mem := storage.NewMemory()
	r := NewRegistry(time.Minute, opener(mem, &opened))
	defer r.Close()

	a, err := r.Get("a", "")
	require.NoError(t, err)
	signals := 0
	a.Subscribe(func() { signals++ })

	r.Drop("a")
	assert.Equal(t, 0, r.Len())
	require.NoError(t, storage.NewArea(mem, "other").Set(context.Background(), "visitedCities", "[1]"))
	assert.Equal(t, 0, signals, "dropped tab no longer listens")
}

func TestRegistryExpiresIdleTabs(t *testing.T) {
	var opened []string
	r := NewRegistry(50*time.Millisecond, opener(storage.NewMemory(), &opened))
	defer r.Close()
	_, err := r.Get("a", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRegistryReopenClosesExpiredTab(t *testing.T) {
	var opened []string
	r := NewRegistry(50*time.Millisecond, opener(storage.NewMemory(), &opened))
	defer r.Close()
	assert.Equal(t, 50*time.Millisecond, r.TTL())

	a1, err := r.Get("a", "")
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)
	a2, err := r.Get("a", "")
	require.NoError(t, err)
	assert.NotSame(t, a1, a2)
	select {
	case <-a1.Done():
	default:
		t.Fatal("expired tab left open after its id was reopened")
	}
	assert.Equal(t, 1, r.Len())
}
