package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	k := New()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("r:projects:1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.Len())
}

func TestLockManyOrdersAndDedups(t *testing.T) {
	k := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			k.LockMany("a", "b", "a")()
		}()
		go func() {
			defer wg.Done()
			k.LockMany("b", "a")()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, k.Len())
}
