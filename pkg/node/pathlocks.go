package node

import "sync"

// pathLocks hands out one RWMutex per cleaned path. Entries are reference
// counted and dropped when the last holder releases them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.RWMutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

func (p *pathLocks) acquire(path string) *pathLock {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, exists := p.locks[path]
	if !exists {
		lock = &pathLock{}
		p.locks[path] = lock
	}
	lock.refs++
	return lock
}

func (p *pathLocks) release(path string) *pathLock {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock := p.locks[path]
	lock.refs--
	if lock.refs == 0 {
		delete(p.locks, path)
	}
	return lock
}

func (p *pathLocks) Lock(path string)    { p.acquire(path).Lock() }
func (p *pathLocks) Unlock(path string)  { p.release(path).Unlock() }
func (p *pathLocks) RLock(path string)   { p.acquire(path).RLock() }
func (p *pathLocks) RUnlock(path string) { p.release(path).RUnlock() }

// size reports how many paths currently hold an entry.
func (p *pathLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
