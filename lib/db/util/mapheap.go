// Package util
//
// This file provides a priority queue used by the drivers to track rows that
// carry an expiration time.
//
// The implementation combines a binary heap with a hash map so that the row
// expiring next can be found in O(1), while a single row can still be updated
// or removed by its key in O(log n). Updating the expiration of a row that is
// already queued fixes its position instead of adding a second item.
//
// Concurrency: MapHeap is not thread-safe, external synchronization is required.
//
// Example usage:
//
//	expiry := NewMapHeap[string]()
//	expiry.AddItem("session:1", deadline.UnixNano())
//
//	for {
//	    next, ok := expiry.Peek()
//	    if !ok || next.Priority > now.UnixNano() {
//	        break
//	    }
//	    expiry.RemoveByKey(next.Key)
//	    // remove the row
//	}
package util

import (
	"container/heap"
	"fmt"
)

// Item is an entry of the queue: a key and its priority (lower comes first).
type Item[K comparable] struct {
	Key      K
	Priority int64
	index    int // index in the heap, maintained by the heap package
}

func (i *Item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap is a min-heap by priority with key-based access.
type MapHeap[K comparable] struct {
	items    []*Item[K]
	itemsMap map[K]*Item[K]
}

// NewMapHeap creates an empty queue.
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*Item[K], 0),
		itemsMap: make(map[K]*Item[K]),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (mh *MapHeap[K]) Len() int { return len(mh.items) }

// Less compares items by priority (part of heap.Interface)
func (mh *MapHeap[K]) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap[K]) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface, use AddItem instead)
func (mh *MapHeap[K]) Push(x any) {
	it := x.(*Item[K])
	it.index = len(mh.items)
	mh.items = append(mh.items, it)
	mh.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface, use heap.Pop instead)
func (mh *MapHeap[K]) Pop() any {
	old := mh.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	mh.items = old[:n-1]
	delete(mh.itemsMap, it.Key)
	return it
}

// AddItem adds a new item to the queue or updates the priority of an existing one.
func (mh *MapHeap[K]) AddItem(key K, priority int64) {
	if it, exists := mh.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(mh, it.index)
		return
	}
	heap.Push(mh, &Item[K]{Key: key, Priority: priority})
}

// RemoveByKey removes an item by its key and returns its priority.
func (mh *MapHeap[K]) RemoveByKey(key K) (int64, bool) {
	it, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh, it.index)
	return it.Priority, true
}

// Peek returns the item with the lowest priority without removing it.
func (mh *MapHeap[K]) Peek() (*Item[K], bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return mh.items[0], true
}

// Contains checks if a key is queued.
func (mh *MapHeap[K]) Contains(key K) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it.
func (mh *MapHeap[K]) GetByKey(key K) (*Item[K], bool) {
	it, exists := mh.itemsMap[key]
	return it, exists
}

// Clear removes all items.
func (mh *MapHeap[K]) Clear() {
	mh.items = mh.items[:0]
	clear(mh.itemsMap)
}
