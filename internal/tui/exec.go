package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// postedMsg wakes Update to run queued continuations.
type postedMsg struct{}

// executor runs blocking work on goroutines and queues continuations for the
// Update loop, which is the only goroutine that touches sidebar state.
type executor struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func newExecutor() *executor {
	return &executor{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (e *executor) Go(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Post queues fn. It never runs fn itself, so it is safe to call from Update.
func (e *executor) Post(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// wait blocks until something is posted.
func (e *executor) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-e.wake:
			return postedMsg{}
		case <-e.stop:
			return nil
		}
	}
}

// drain runs queued continuations in order, including ones they post.
func (e *executor) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		fn()
	}
}

func (e *executor) close() {
	e.once.Do(func() { close(e.stop) })
}
