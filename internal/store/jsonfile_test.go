package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count int `json:"count"`
}

func TestJSONFileLazyCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f := NewJSONFile(path, func() counterState { return counterState{Count: 7} })

	state, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 7, state.Count)

	// Second read comes from disk, not the initializer.
	state, err = f.Read()
	require.NoError(t, err)
	assert.Equal(t, 7, state.Count)
}

func TestJSONFileUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f := NewJSONFile(path, func() counterState { return counterState{} })

	_, err := f.Update(func(s counterState) (counterState, error) {
		s.Count++
		return s, nil
	})
	require.NoError(t, err)

	// A fresh handle sees the committed state.
	g := NewJSONFile(path, func() counterState { return counterState{} })
	state, err := g.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, state.Count)
}

func TestJSONFileUpdateError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f := NewJSONFile(path, func() counterState { return counterState{Count: 3} })

	_, err := f.Update(func(s counterState) (counterState, error) {
		return s, fmt.Errorf("boom")
	})
	require.Error(t, err)

	state, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 3, state.Count)
}

func TestJSONFileConcurrentUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f := NewJSONFile(path, func() counterState { return counterState{} })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Update(func(s counterState) (counterState, error) {
				s.Count++
				return s, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 20, state.Count)
}
