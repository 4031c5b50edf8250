package util

import (
	"container/heap"
	"fmt"
	"sort"
	"testing"
)

type rowRef struct {
	table string
	key   string
}

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.itemsMap))
	}
}

// TestAddItem tests adding items to the heap
func TestAddItem(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	for _, k := range []string{"a", "b", "c"} {
		if !mh.Contains(k) {
			t.Errorf("Heap should contain key %q", k)
		}
	}

	item, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}
	if item.Key != "c" || item.Priority != 50 {
		t.Errorf("Expected min item to be (c,50), got %s", item)
	}
}

// TestUpdateItem tests that adding an existing key moves it instead of duplicating it
func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("b", 10)

	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after update, but has %d", mh.Len())
	}

	item, _ := mh.Peek()
	if item.Key != "b" || item.Priority != 10 {
		t.Errorf("Expected min item to be (b,10), got %s", item)
	}

	mh.AddItem("b", 300)
	item, _ = mh.Peek()
	if item.Key != "a" {
		t.Errorf("Expected min item to be a after increasing b, got %s", item)
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	priority, ok := mh.RemoveByKey("c")
	if !ok || priority != 50 {
		t.Errorf("RemoveByKey(c) = (%d,%v), expected (50,true)", priority, ok)
	}
	if mh.Contains("c") {
		t.Error("Heap should not contain removed key c")
	}

	item, _ := mh.Peek()
	if item.Key != "a" {
		t.Errorf("Expected min item to be a after removal, got %s", item)
	}

	if _, ok := mh.RemoveByKey("missing"); ok {
		t.Error("RemoveByKey should return false for a non-existent key")
	}
}

// TestPopOrder tests that items are popped in priority order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[string]()
	priorities := []int64{500, -3, 42, 7, 1000, 0, 13}
	for i, p := range priorities {
		mh.AddItem(fmt.Sprintf("k%d", i), p)
	}

	var got []int64
	for mh.Len() > 0 {
		got = append(got, heap.Pop(mh).(*Item[string]).Priority)
	}

	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }) {
		t.Errorf("Items were not popped in order: %v", got)
	}
	if len(mh.itemsMap) != 0 {
		t.Errorf("Map should be empty after popping everything, has %d items", len(mh.itemsMap))
	}
}

// TestPeekEmptyHeap tests peeking an empty heap
func TestPeekEmptyHeap(t *testing.T) {
	mh := NewMapHeap[string]()
	if _, exists := mh.Peek(); exists {
		t.Error("Peek() on empty heap should return exists=false")
	}
}

// TestGetByKey tests retrieving items by key
func TestGetByKey(t *testing.T) {
	mh := NewMapHeap[rowRef]()
	mh.AddItem(rowRef{"users", "1"}, 100)
	mh.AddItem(rowRef{"orders", "1"}, 200)

	item, exists := mh.GetByKey(rowRef{"users", "1"})
	if !exists {
		t.Fatal("GetByKey should find existing key")
	}
	if item.Priority != 100 {
		t.Errorf("GetByKey returned incorrect priority: expected 100, got %d", item.Priority)
	}

	if _, exists = mh.GetByKey(rowRef{"users", "2"}); exists {
		t.Error("GetByKey should return exists=false for non-existent key")
	}
}

// TestClear tests that Clear empties heap and index
func TestClear(t *testing.T) {
	mh := NewMapHeap[string]()
	for i := 0; i < 10; i++ {
		mh.AddItem(fmt.Sprint(i), int64(i))
	}
	mh.Clear()

	if mh.Len() != 0 || len(mh.itemsMap) != 0 {
		t.Errorf("Heap should be empty after Clear, has %d items and %d map entries", mh.Len(), len(mh.itemsMap))
	}

	mh.AddItem("x", 1)
	if item, ok := mh.Peek(); !ok || item.Key != "x" {
		t.Error("Heap should be usable after Clear")
	}
}

// TestLargeNumberOfItems tests the heap with many items and random removals
func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap[int]()
	const n = 10000
	for i := 0; i < n; i++ {
		mh.AddItem(i, int64((i*7919)%n))
	}
	for i := 0; i < n; i += 3 {
		mh.RemoveByKey(i)
	}

	last := int64(-1)
	for mh.Len() > 0 {
		it := heap.Pop(mh).(*Item[int])
		if it.Priority < last {
			t.Fatalf("Heap order violated: %d after %d", it.Priority, last)
		}
		last = it.Priority
	}
}
