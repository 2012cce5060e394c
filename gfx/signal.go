// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"context"
	"sync"
)

// NewLossSignal creates an unsignaled, unregistered LossSignal.
func NewLossSignal() *LossSignal {
	return &LossSignal{
		ch: make(chan struct{}),
	}
}

// LossSignal is a manual-reset, re-armable notification. Fire leaves
// it signaled until Reset returns it to idle, waiters released in
// between. At most one device may hold a registration against the
// signal at any moment; the registration moves to the replacement
// device on recovery, it is never duplicated.
type LossSignal struct {
	mu     sync.Mutex
	ch     chan struct{}
	fired  bool
	holder Device
}

// Fire marks the signal and releases every waiter. Firing an already
// signaled LossSignal does nothing.
func (s *LossSignal) Fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return
	}
	s.fired = true
	close(s.ch)
}

// Reset consumes the signaled state so the signal can fire again.
func (s *LossSignal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fired {
		return
	}
	s.fired = false
	s.ch = make(chan struct{})
}

// Fired reports whether the signal is currently in the signaled state.
func (s *LossSignal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Wait blocks until the signal fires or ctx is cancelled. It returns
// immediately when the signal is already in the signaled state.
func (s *LossSignal) Wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach records dev as the device registered against the signal.
// Device implementations call this from RegisterRemovedSignal, it is
// not meant for signal consumers. Attach fails with ErrSignalBusy
// while another registration is live.
func (s *LossSignal) Attach(dev Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder != nil {
		return ErrSignalBusy
	}
	s.holder = dev
	return nil
}

// Detach clears the registration if dev holds it. Counterpart of
// Attach for device implementations.
func (s *LossSignal) Detach(dev Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == dev {
		s.holder = nil
	}
}

// Registered returns the device currently holding the registration,
// or nil when the signal is free.
func (s *LossSignal) Registered() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}
