package membership

import "sync"

// channelLocks serializes membership mutations per channel. The mutation and
// its fan-out notification run under one lock acquisition so two concurrent
// mutations on the same channel can neither race a nickname-uniqueness check
// nor interleave their broadcasts. Different channels proceed in parallel.
type channelLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChannelLocks() *channelLocks {
	return &channelLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex of the given channel and returns its unlock func.
func (l *channelLocks) acquire(channelID string) func() {
	l.mu.Lock()
	m, ok := l.locks[channelID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[channelID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
