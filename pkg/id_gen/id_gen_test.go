package id_gen

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextId_Unique(t *testing.T) {
	ctx := context.Background()
	const goroutines = 20
	const perGoroutine = 50

	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, goroutines*perGoroutine)
		wg   sync.WaitGroup
	)
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				id, err := NextId(ctx)
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestSeqIdGenerator(t *testing.T) {
	g := &SeqIdGenerator{}
	first, err := g.NextId(context.Background())
	require.NoError(t, err)
	second, err := g.NextId(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestMachineId_InRange(t *testing.T) {
	id, err := machineId()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, 0)
	assert.Less(t, id, 1<<16)
}
