// internal/mavconn/reactor.go
package mavconn

import (
	"sync"

	"go.uber.org/zap"
)

// reactorEvent carries inbound bytes from a transport pump to the dispatch
// loop
type reactorEvent struct {
	channel int
	data    []byte
}

// reactorCtrl mutates the handler table from inside the dispatch loop
type reactorCtrl struct {
	channel int
	handler ReceiveFunc // nil means deregister
	done    chan struct{}
}

// Reactor is the shared dispatch loop serving every open connection.
// Transports register a per-channel handler; all handlers run serialized on
// the single reactor goroutine and must not block. Blocking reads stay on
// the transports' own pump goroutines, which feed the loop through Post.
//
// The lifecycle is start-once: Start is idempotent and the loop runs until
// Stop is called at process shutdown.
type Reactor struct {
	logger *zap.Logger

	startOnce sync.Once
	events    chan reactorEvent
	ctrl      chan reactorCtrl
	quit      chan struct{}
	done      chan struct{}
}

// NewReactor creates a reactor; the dispatch loop starts on first Start
func NewReactor(logger *zap.Logger) *Reactor {
	return &Reactor{
		logger: logger.With(zap.String("component", "reactor")),
		events: make(chan reactorEvent, 512),
		ctrl:   make(chan reactorCtrl),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the dispatch loop. Calling it again is a no-op.
func (r *Reactor) Start() {
	r.startOnce.Do(func() {
		r.logger.Debug("Starting dispatch loop")
		go r.run()
	})
}

// Stop terminates the dispatch loop and waits for it to exit
func (r *Reactor) Stop() {
	r.Start() // a never-started loop still has to wind down
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
	<-r.done
	r.logger.Debug("Dispatch loop stopped")
}

// Register installs the handler invoked for events posted on the channel
func (r *Reactor) Register(channel int, fn ReceiveFunc) {
	r.submit(reactorCtrl{channel: channel, handler: fn, done: make(chan struct{})})
}

// Deregister removes the channel's handler. It returns only after the
// dispatch loop applied the removal, guaranteeing no further callbacks for
// the channel fire after this call.
func (r *Reactor) Deregister(channel int) {
	r.submit(reactorCtrl{channel: channel, done: make(chan struct{})})
}

// Post delivers received bytes to the channel's handler via the dispatch
// loop. Events posted for a deregistered channel are dropped.
func (r *Reactor) Post(channel int, data []byte) {
	select {
	case r.events <- reactorEvent{channel: channel, data: data}:
	case <-r.done:
	}
}

// submit applies a handler-table mutation on the loop and waits for it
func (r *Reactor) submit(req reactorCtrl) {
	select {
	case r.ctrl <- req:
		<-req.done
	case <-r.done:
	}
}

// run is the dispatch loop; the handler table is owned by this goroutine
func (r *Reactor) run() {
	defer close(r.done)

	handlers := make(map[int]ReceiveFunc)

	for {
		select {
		case req := <-r.ctrl:
			if req.handler != nil {
				handlers[req.channel] = req.handler
				r.logger.Debug("Registered channel handler", zap.Int("channel", req.channel))
			} else {
				delete(handlers, req.channel)
				r.logger.Debug("Deregistered channel handler", zap.Int("channel", req.channel))
			}
			close(req.done)

		case ev := <-r.events:
			if fn, ok := handlers[ev.channel]; ok {
				fn(ev.channel, ev.data)
			}

		case <-r.quit:
			return
		}
	}
}
