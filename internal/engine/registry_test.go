package engine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/social"
)

func TestRegistryCreatesOncePerOwner(t *testing.T) {
	e := newTestEngine(t)
	r := NewRegistry()
	var created atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.GetOrCreate("chat-1", func() *social.Settlement {
				created.Add(1)
				return e.NewSettlement("chat-1", "Once", epoch)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryLookupAndOwners(t *testing.T) {
	e := newTestEngine(t)
	r := NewRegistry()

	_, ok := r.Lookup("nobody")
	assert.False(t, ok)

	for _, owner := range []string{"zed", "amy", "kim"} {
		_, created := r.GetOrCreate(owner, func() *social.Settlement {
			return e.NewSettlement(owner, owner, epoch)
		})
		assert.True(t, created)
	}
	_, created := r.GetOrCreate("amy", nil)
	assert.False(t, created)

	assert.Equal(t, []string{"amy", "kim", "zed"}, r.Owners())

	sl, ok := r.Lookup("kim")
	require.True(t, ok)
	err := sl.Do(func(s *social.Settlement) error {
		assert.Equal(t, "kim", s.OwnerID)
		return nil
	})
	require.NoError(t, err)
}

func TestSlotSerializesMutations(t *testing.T) {
	e := newTestEngine(t)
	r := NewRegistry()
	sl, _ := r.GetOrCreate("chat-1", func() *social.Settlement {
		return e.NewSettlement("chat-1", "Busy", epoch)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				sl.Read(func(s *social.Settlement) { s.SimHours++ })
				return
			}
			assert.NoError(t, sl.Do(func(s *social.Settlement) error {
				s.SimHours++
				return nil
			}))
		}(i)
	}
	wg.Wait()

	sl.Read(func(s *social.Settlement) {
		assert.Equal(t, 100.0, s.SimHours)
	})
}
