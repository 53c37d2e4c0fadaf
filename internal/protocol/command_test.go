package protocol

import (
	"math"
	"sync"
	"testing"
)

// TestAutoAssignedIDsIncrease tests that id 0 draws strictly increasing ids regardless of type or data
func TestAutoAssignedIDsIncrease(t *testing.T) {
	t.Parallel()

	ids := NewIDAllocator(FirstCommandID)

	a := ids.NewCommand(Transform, nil, 0)
	b := ids.NewCommand(JoinRoom, []byte("room"), 0)
	c := ids.NewCommand(Mesh, []byte{1, 2, 3}, 0)

	if a.ID != FirstCommandID {
		t.Errorf("first id = %d, want %d", a.ID, FirstCommandID)
	}
	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Errorf("ids not strictly increasing: %d, %d, %d", a.ID, b.ID, c.ID)
	}
}

// TestExplicitIDUsedVerbatim tests that a nonzero id is kept and does not consume the counter
func TestExplicitIDUsedVerbatim(t *testing.T) {
	t.Parallel()

	ids := NewIDAllocator(FirstCommandID)

	cmd := ids.NewCommand(Rename, nil, 7)
	if cmd.ID != 7 {
		t.Errorf("ID = %d, want 7", cmd.ID)
	}
	if next := ids.NewCommand(Rename, nil, 0); next.ID != FirstCommandID {
		t.Errorf("next auto id = %d, want %d", next.ID, FirstCommandID)
	}
}

// TestNilAllocatorKeepsZero tests that commands built without an allocator keep id 0
func TestNilAllocatorKeepsZero(t *testing.T) {
	t.Parallel()

	var ids *IDAllocator
	cmd := ids.NewCommand(Delete, nil, 0)
	if cmd.ID != 0 {
		t.Errorf("ID = %d, want 0", cmd.ID)
	}
	if cmd.Data == nil || len(cmd.Data) != 0 {
		t.Errorf("Data = %v, want empty non-nil slice", cmd.Data)
	}
}

// TestAllocatorNeverReturnsZero tests that id 0 is skipped for the zero value and on wrap-around
func TestAllocatorNeverReturnsZero(t *testing.T) {
	t.Parallel()

	var zero IDAllocator
	if got := zero.Next(); got != 1 {
		t.Errorf("zero value first id = %d, want 1", got)
	}

	fromZero := NewIDAllocator(0)
	if got := fromZero.Next(); got != 1 {
		t.Errorf("NewIDAllocator(0) first id = %d, want 1", got)
	}

	wrapping := NewIDAllocator(math.MaxUint32)
	if got := wrapping.Next(); got != math.MaxUint32 {
		t.Errorf("first id = %d, want %d", got, uint32(math.MaxUint32))
	}
	if got := wrapping.Next(); got != 1 {
		t.Errorf("id after wrap = %d, want 1", got)
	}
	if cmd := wrapping.NewCommand(Transform, nil, 0); cmd.ID != 2 {
		t.Errorf("command id after wrap = %d, want 2", cmd.ID)
	}
}

// TestConcurrentAllocation tests that concurrent construction never repeats an id
func TestConcurrentAllocation(t *testing.T) {
	t.Parallel()

	const workers, perWorker = 16, 500
	ids := NewIDAllocator(FirstCommandID)

	var mu sync.Mutex
	seen := make(map[uint32]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint32, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, ids.NewCommand(Transform, nil, 0).ID)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("unique ids = %d, want %d", len(seen), workers*perWorker)
	}
}

// BenchmarkIDAllocation benchmarks id allocation
func BenchmarkIDAllocation(b *testing.B) {
	ids := NewIDAllocator(FirstCommandID)
	for i := 0; i < b.N; i++ {
		_ = ids.Next()
	}
}
