package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArena_SerializesSameKey(t *testing.T) {
	a := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := a.Lock("acct:rest")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
	assert.Equal(t, 0, a.Len())
}

func TestArena_DistinctKeysDoNotBlock(t *testing.T) {
	a := New()
	unlockA := a.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := a.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, a.Len())
}
