package pve

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBattleLocks(t *testing.T) {
	locks := newBattleLocks()

	unlock := locks.lock(1)
	assert.Equal(t, 1, locks.size())

	// 不同战斗互不阻塞
	other := locks.lock(2)
	other()

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release := locks.lock(1)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("同一战斗的锁被重复获取")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	wg.Wait()
	assert.Zero(t, locks.size())
}
