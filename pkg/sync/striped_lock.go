package sync

import (
	"sort"
	base "sync"
)

const (
	hashEntriesPerLock = 200
)

// StripedLock is a partitioned locking mechanism that consistently maps a key
// space to a set of locks. This provides concurrent data access while also
// limiting the total memory footprint.
type StripedLock struct {
	locks    []base.RWMutex
	hashRing *ring
}

// NewStripedLock returns a new StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks:    make([]base.RWMutex, stripes),
		hashRing: newRing(int(stripes), hashEntriesPerLock),
	}
}

// Get gets the lock for a key
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.hashRing.partition(key)]
}

// LockAll acquires every stripe covering the provided keys and returns a
// function releasing them. Stripes are acquired in index order so concurrent
// callers cannot deadlock. A stripe covering any writable key is write locked,
// otherwise it is read locked.
func (l *StripedLock) LockAll(writable, readonly [][]byte) (unlock func()) {
	exclusive := make(map[int]bool)
	for _, key := range readonly {
		exclusive[l.hashRing.partition(key)] = false
	}
	for _, key := range writable {
		exclusive[l.hashRing.partition(key)] = true
	}

	stripes := make([]int, 0, len(exclusive))
	for stripe := range exclusive {
		stripes = append(stripes, stripe)
	}
	sort.Ints(stripes)

	for _, stripe := range stripes {
		if exclusive[stripe] {
			l.locks[stripe].Lock()
		} else {
			l.locks[stripe].RLock()
		}
	}

	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			stripe := stripes[i]
			if exclusive[stripe] {
				l.locks[stripe].Unlock()
			} else {
				l.locks[stripe].RUnlock()
			}
		}
	}
}
