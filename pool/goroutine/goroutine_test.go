package goroutine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoFallsBack(t *testing.T) {
	p := Default()
	var wg sync.WaitGroup
	var mu sync.Mutex
	ran := 0
	task := func() {
		mu.Lock()
		ran++
		mu.Unlock()
		wg.Done()
	}

	wg.Add(3)
	Go(p, task)
	Go(nil, task)
	p.Release()
	Go(p, task)
	wg.Wait()
	assert.Equal(t, 3, ran)
}
