package sync

import (
	base "sync"
)

const replicasPerStripe = 200

// StripedLock maps an unbounded key space, such as wallet public keys, onto
// a fixed set of locks. Distinct keys may share a lock.
type StripedLock struct {
	locks []base.RWMutex
	ring  *ring
}

func NewStripedLock(stripes uint) *StripedLock {
	return &StripedLock{
		locks: make([]base.RWMutex, stripes),
		ring:  newRing(stripes, replicasPerStripe),
	}
}

// Get gets the lock for a key. The same key always gets the same lock.
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.ring.stripe(key)]
}
