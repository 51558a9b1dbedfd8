package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomLocks_SerializesAndReleases(t *testing.T) {
	locks := newRoomLocks()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("room")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, locks.size(), "释放后不应残留锁")
}

func TestRoomLocks_IndependentRooms(t *testing.T) {
	locks := newRoomLocks()
	unlockA := locks.Lock("a")
	// 另一个房间的锁不应被阻塞
	unlockB := locks.Lock("b")
	assert.Equal(t, 2, locks.size())
	unlockB()
	unlockA()
	assert.Equal(t, 0, locks.size())
}

func TestSleepCtxZeroDuration(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), 0))
}
