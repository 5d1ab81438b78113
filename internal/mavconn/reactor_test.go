// internal/mavconn/reactor_test.go
package mavconn

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReactorStartIsIdempotent(t *testing.T) {
	r := NewReactor(zap.NewNop())
	defer r.Stop()

	r.Start()
	r.Start()
	r.Start()

	got := make(chan []byte, 1)
	r.Register(0, func(ch int, data []byte) { got <- data })
	r.Post(0, []byte{0xfe, 0x01})

	select {
	case data := <-got:
		assert.Equal(t, []byte{0xfe, 0x01}, data)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestReactorDispatchesByChannel(t *testing.T) {
	r := NewReactor(zap.NewNop())
	r.Start()
	defer r.Stop()

	var aCount, bCount atomic.Int32
	r.Register(1, func(ch int, data []byte) {
		assert.Equal(t, 1, ch)
		aCount.Add(1)
	})
	r.Register(2, func(ch int, data []byte) {
		assert.Equal(t, 2, ch)
		bCount.Add(1)
	})

	for i := 0; i < 10; i++ {
		r.Post(1, []byte{1})
	}
	r.Post(2, []byte{2})

	require.Eventually(t, func() bool {
		return aCount.Load() == 10 && bCount.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReactorDeregisterIsACallbackBarrier(t *testing.T) {
	r := NewReactor(zap.NewNop())
	r.Start()
	defer r.Stop()

	var fired atomic.Int32
	r.Register(3, func(ch int, data []byte) { fired.Add(1) })

	r.Post(3, []byte{1})
	r.Deregister(3)
	after := fired.Load()

	// events posted after deregistration are dropped
	r.Post(3, []byte{2})
	r.Post(3, []byte{3})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, after, fired.Load())
}

func TestReactorCallbacksAreSerialized(t *testing.T) {
	r := NewReactor(zap.NewNop())
	r.Start()
	defer r.Stop()

	var inFlight, maxInFlight atomic.Int32
	var done sync.WaitGroup
	done.Add(2 * 50)

	handler := func(ch int, data []byte) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		inFlight.Add(-1)
		done.Done()
	}
	r.Register(4, handler)
	r.Register(5, handler)

	for i := 0; i < 50; i++ {
		go r.Post(4, []byte{byte(i)})
		go r.Post(5, []byte{byte(i)})
	}

	done.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load(), "handlers ran concurrently")
}
