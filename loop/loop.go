/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package loop runs queued work one function at a time on a single
// goroutine. Everything that touches client state is posted here, so the
// state itself needs no locks.
package loop

import (
	"context"
	"sync"
)

type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

func New(size int) *Loop {
	if size < 1 {
		size = 1
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post enqueues f. It blocks while the queue is full and drops f once the
// loop has stopped. It reports whether f was queued.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- f:
		return true
	case <-l.done:
		return false
	}
}

// Dispatch adapts Post to link.Dispatch.
func (l *Loop) Dispatch(f func()) { l.Post(f) }

// Run executes queued functions until ctx ends. Work still queued at that
// point is discarded.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.stop()
			return ctx.Err()
		case f := <-l.queue:
			f()
		}
	}
}

// Do posts f and waits for it to finish. It must not be called from the
// loop goroutine itself.
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		f()
	}) {
		return context.Canceled
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) stop() {
	l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-l.queue:
		default:
			return
		}
	}
}
