package utils

import (
	"sync"
	"testing"
	"time"
)

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	if id1 == id2 {
		t.Error("Generated run IDs should be different")
	}
	if len(id1) != 26 {
		t.Errorf("Run ID should be 26 characters, got %d", len(id1))
	}
	if id2 <= id1 {
		t.Errorf("Run IDs should sort by creation: %s <= %s", id2, id1)
	}
}

func TestNewRunIDAt(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	id := NewRunIDAt(start)

	got, err := RunIDTime(id)
	if err != nil {
		t.Fatalf("RunIDTime failed: %v", err)
	}
	if !got.Equal(start) {
		t.Errorf("RunIDTime = %v, want %v", got, start)
	}
}

func TestRunIDTimeInvalid(t *testing.T) {
	if _, err := RunIDTime("not-a-ulid"); err == nil {
		t.Error("expected an error for an invalid run ID")
	}
}

func TestNewRunIDConcurrent(t *testing.T) {
	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewRunID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate run ID %s", id)
		}
		seen[id] = true
	}
}
