// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/paychan/chain"
)

// Listener receives events of the type it was registered for. Listeners are
// invoked synchronously from the scanner, in registration order.
type Listener func(chain.Event)

// ListenerID identifies a registration made with On
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// eventBus is a per event type ordered listener registry
type eventBus struct {
	logger log.Logger

	lock      sync.RWMutex
	nextID    ListenerID
	listeners map[chain.EventType][]registration
}

func newEventBus(logger log.Logger) *eventBus {
	return &eventBus{
		logger:    logger,
		listeners: make(map[chain.EventType][]registration),
	}
}

func (b *eventBus) on(typ chain.EventType, fn Listener) ListenerID {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	b.listeners[typ] = append(b.listeners[typ], registration{id: b.nextID, fn: fn})
	return b.nextID
}

func (b *eventBus) off(typ chain.EventType, id ListenerID) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	regs := b.listeners[typ]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, typ)
		} else {
			b.listeners[typ] = next
		}
		return true
	}
	return false
}

// dispatch delivers ev to a snapshot of its listeners. The lock is not held
// while listeners run so they may register or remove listeners.
func (b *eventBus) dispatch(ev chain.Event) int {
	b.lock.RLock()
	regs := b.listeners[ev.Type]
	b.lock.RUnlock()

	for _, reg := range regs {
		b.invoke(reg, ev)
	}
	return len(regs)
}

// invoke isolates the scanner from a panicking listener
func (b *eventBus) invoke(reg registration, ev chain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(
				"Event listener panicked",
				log.String("eventType", string(ev.Type)),
				log.Stringer("txHash", ev.TxHash),
				log.Err(fmt.Errorf("%v", r)),
			)
		}
	}()
	reg.fn(ev)
}

// stream forwards events of the given types to a channel until ctx or done
// is closed. The channel is closed once the stream ends.
func (b *eventBus) stream(ctx context.Context, done <-chan struct{}, bufferSize int, types ...chain.EventType) <-chan chain.Event {
	var (
		ch      = make(chan chain.Event, bufferSize)
		wanted  = set.Of(types...)
		stopped = make(chan struct{})
		lock    sync.Mutex
		closed  bool
		ids     = make(map[chain.EventType]ListenerID, wanted.Len())
	)

	forward := func(ev chain.Event) {
		lock.Lock()
		defer lock.Unlock()

		if closed {
			return
		}
		select {
		case ch <- ev:
		case <-stopped:
		}
	}
	for typ := range wanted {
		ids[typ] = b.on(typ, forward)
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		// Unblock a pending send before taking the lock
		close(stopped)
		for typ, id := range ids {
			b.off(typ, id)
		}

		lock.Lock()
		closed = true
		close(ch)
		lock.Unlock()
	}()
	return ch
}
