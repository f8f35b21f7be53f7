package snowflake

import (
	"sync"
	"testing"
)

func TestGenerate_Unique(t *testing.T) {
	node, err := NewNode(1)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	seen := make(map[ID]bool)
	for i := 0; i < 10000; i++ {
		id := node.Generate()
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %d", id)
		}
		seen[id] = true
	}
}

func TestGenerate_Monotonic(t *testing.T) {
	node, _ := NewNode(1)

	prev := node.Generate()
	for i := 0; i < 1000; i++ {
		id := node.Generate()
		if id <= prev {
			t.Fatalf("IDs should be strictly increasing: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestGenerate_Concurrent(t *testing.T) {
	node, _ := NewNode(1)

	const goroutines = 8
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[ID]bool)
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				id := node.Generate()
				mu.Lock()
				if seen[id] {
					t.Errorf("Duplicate ID under concurrency: %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestNewNode_InvalidID(t *testing.T) {
	// 越界的节点 ID 回退为 1
	node, err := NewNode(-5)
	if err != nil {
		t.Fatalf("NewNode should not fail: %v", err)
	}
	if node.nodeID != 1 {
		t.Errorf("Expected fallback node ID 1, got %d", node.nodeID)
	}
}
