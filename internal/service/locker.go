package service

import "sync"

// roomLocks 为每个房间 ID 提供一把互斥锁，用于串行化同一房间的读-改-写。
// 不再被引用的锁会被回收。
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// Lock 获取 id 对应的锁，返回释放函数
func (l *roomLocks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &roomLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size 返回当前持有的锁数量
func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
