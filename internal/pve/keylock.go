package pve

import "sync"

// battleLocks 按战斗ID加锁，提交与房间推送在同一把锁内完成，客户端看到的事件顺序与提交顺序一致
// 没有持有者的锁会被删除
type battleLocks struct {
	mu    sync.Mutex
	locks map[int64]*battleLock
}

type battleLock struct {
	mu   sync.Mutex
	refs int
}

func newBattleLocks() *battleLocks {
	return &battleLocks{locks: make(map[int64]*battleLock)}
}

// lock 获取战斗锁，返回解锁函数
func (b *battleLocks) lock(battleID int64) func() {
	b.mu.Lock()
	l, ok := b.locks[battleID]
	if !ok {
		l = &battleLock{}
		b.locks[battleID] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, battleID)
		}
		b.mu.Unlock()
	}
}

func (b *battleLocks) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.locks)
}
