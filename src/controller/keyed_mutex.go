package controller

import (
	"fmt"
	"sync"
)

// keyedMutex serializes lifecycle operations per user/symbol pair so two
// loops never race on the same order chain or reentry decision. Entries
// are kept for the life of the process; cardinality is bounded by the
// number of traded user/symbol pairs.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func lockKey(userID uint, symbol string) string {
	return fmt.Sprintf("%d/%s", userID, symbol)
}
