package buffer

import (
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/busprobe/internal/types"
)

func TestBuffer_AppendAssignsSequence(t *testing.T) {
	b := New(0)
	first, err := b.AppendBody("test", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	second, err := b.AppendBody("test", map[string]any{"n": 2})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("Seq = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if first.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
	if first.Source != "test" {
		t.Errorf("Source = %q, want test", first.Source)
	}
}

func TestBuffer_SnapshotIsIsolated(t *testing.T) {
	b := New(0)
	doc, _ := b.AppendBody("test", "a")

	snap := b.Snapshot()
	b.AppendBody("test", "b")
	b.Remove(doc)

	if len(snap) != 1 || snap[0] != doc {
		t.Errorf("snapshot changed after mutation: %v", snap)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBuffer_RemoveByIdentity(t *testing.T) {
	b := New(0)
	a, _ := b.AppendBody("test", "same")
	c, _ := b.AppendBody("test", "same")

	if !b.Remove(c) {
		t.Fatal("Remove() = false for buffered document")
	}
	if b.Remove(c) {
		t.Error("second Remove() = true, want false")
	}
	snap := b.Snapshot()
	if len(snap) != 1 || snap[0] != a {
		t.Errorf("Remove took the wrong document, left %v", snap)
	}
	if b.Remove(&types.Document{Body: "same"}) {
		t.Error("Remove() matched by value, want identity only")
	}
}

func TestBuffer_ConcurrentClaim(t *testing.T) {
	b := New(0)
	doc, _ := b.AppendBody("test", "x")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Remove(doc) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("claims won = %d, want 1", wins)
	}
}

func TestBuffer_Eviction(t *testing.T) {
	b := New(3)
	var docs []*types.Document
	for i := 0; i < 5; i++ {
		d, _ := b.AppendBody("test", i)
		docs = append(docs, d)
	}

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Len = %d, want 3", len(snap))
	}
	if snap[0] != docs[2] || snap[2] != docs[4] {
		t.Errorf("oldest documents were not evicted first")
	}
	if b.Evicted() != 2 {
		t.Errorf("Evicted() = %d, want 2", b.Evicted())
	}
}

func TestBuffer_ClearKeepsSequence(t *testing.T) {
	b := New(0)
	b.AppendBody("test", 1)
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("Len() after Clear = %d", b.Len())
	}
	d, _ := b.AppendBody("test", 2)
	if d.Seq != 2 {
		t.Errorf("Seq after Clear = %d, want 2", d.Seq)
	}
}

func TestBuffer_Close(t *testing.T) {
	b := New(0)
	b.AppendBody("test", 1)
	b.Close()

	if _, err := b.AppendBody("test", 2); !errors.Is(err, types.ErrBufferClosed) {
		t.Errorf("Append after Close error = %v, want ErrBufferClosed", err)
	}
	if b.Len() != 1 {
		t.Errorf("Len() after Close = %d, want 1", b.Len())
	}
}

func TestBuffer_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("never holds more than maxSize and keeps order", prop.ForAll(
		func(maxSize, appends int) bool {
			b := New(maxSize)
			for i := 0; i < appends; i++ {
				b.AppendBody("test", i)
			}
			snap := b.Snapshot()
			if len(snap) != min(maxSize, appends) {
				return false
			}
			for i := 1; i < len(snap); i++ {
				if snap[i].Seq <= snap[i-1].Seq {
					return false
				}
			}
			return b.Evicted() == uint64(appends-len(snap))
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}
