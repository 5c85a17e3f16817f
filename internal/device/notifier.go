package device

import "sync"

// notifier delivers state changes to watchers in order on its own
// goroutine, so a driver can report a change while a command is in flight.
type notifier struct {
	mu       sync.Mutex
	handlers map[int]ChangeHandler
	nextID   int
	queue    chan State
	once     sync.Once
}

func newNotifier() *notifier {
	return &notifier{
		handlers: make(map[int]ChangeHandler),
		queue:    make(chan State, 64),
	}
}

func (n *notifier) add(handler ChangeHandler) func() {
	n.once.Do(func() { go n.run() })

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.handlers[id] = handler
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.handlers, id)
		n.mu.Unlock()
	}
}

func (n *notifier) emit(state State) {
	n.mu.Lock()
	watched := len(n.handlers) > 0
	n.mu.Unlock()
	if !watched {
		return
	}

	select {
	case n.queue <- state:
	default:
		// Slow consumer: drop the oldest queued state, the newest wins
		select {
		case <-n.queue:
		default:
		}
		select {
		case n.queue <- state:
		default:
		}
	}
}

func (n *notifier) run() {
	for state := range n.queue {
		n.mu.Lock()
		handlers := make([]ChangeHandler, 0, len(n.handlers))
		for _, h := range n.handlers {
			handlers = append(handlers, h)
		}
		n.mu.Unlock()

		for _, h := range handlers {
			h(state)
		}
	}
}
