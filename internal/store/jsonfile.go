package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFile is a durable read-all/write-all store for one logical record
// file. Every mutation reads the full current state, applies an update
// function and persists the result atomically (temp file + rename), so
// overlapping writers cannot interleave partial states.
type JSONFile[T any] struct {
	path    string
	mu      sync.Mutex
	initial func() T
}

// NewJSONFile creates a store at path. The file is lazily created with
// initial() on first access.
func NewJSONFile[T any](path string, initial func() T) *JSONFile[T] {
	return &JSONFile[T]{path: path, initial: initial}
}

// Read returns the current state, creating the file if it does not exist.
func (f *JSONFile[T]) Read() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

// Update applies fn to the current state and persists the result as one
// read-modify-write step.
func (f *JSONFile[T]) Update(fn func(T) (T, error)) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.readLocked()
	if err != nil {
		var zero T
		return zero, err
	}

	next, err := fn(current)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := f.writeLocked(next); err != nil {
		var zero T
		return zero, err
	}
	return next, nil
}

func (f *JSONFile[T]) readLocked() (T, error) {
	var zero T

	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		state := f.initial()
		if err := f.writeLocked(state); err != nil {
			return zero, err
		}
		return state, nil
	}
	if err != nil {
		return zero, fmt.Errorf("reading %s: %w", f.path, err)
	}

	var state T
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupt file: fall back to the initial state rather than wedging
		// every future run.
		return f.initial(), nil
	}
	return state, nil
}

func (f *JSONFile[T]) writeLocked(state T) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(f.path), err)
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", f.path, err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}
