// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package watchdog keeps a graphics device armed with a live
// rendering device. It watches for device loss, replaces the lost
// device and leaves redrawing to the replacement subscribers on the
// graphics device.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/devblok/kompo/compositor"
	"github.com/devblok/kompo/gfx"
	log "github.com/sirupsen/logrus"
)

// DefaultRetryInterval is the pause between device re-creation
// attempts while the GPU settles.
const DefaultRetryInterval = 500 * time.Millisecond

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRetryInterval sets the pause between recovery attempts.
func WithRetryInterval(interval time.Duration) Option {
	return func(s *Supervisor) {
		s.interval = interval
	}
}

// WithLogger routes the supervisor's state reporting to l.
func WithLogger(l log.FieldLogger) Option {
	return func(s *Supervisor) {
		s.log = l
	}
}

// New creates a Supervisor that recreates the rendering device of
// graphics with provider whenever the armed device is lost.
func New(provider gfx.Provider, graphics *compositor.GraphicsDevice, opts ...Option) *Supervisor {
	s := &Supervisor{
		provider: provider,
		graphics: graphics,
		signal:   gfx.NewLossSignal(),
		interval: DefaultRetryInterval,
		log:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supervisor is the device-loss watchdog. It cycles through
// armed, lost and recovering for the lifetime of the process: armed
// it waits for the loss signal, on loss it consumes the signal and
// releases the dead registration, then retries device creation and
// installation until both succeed, and finally re-registers the
// signal against the fresh device. Exactly one registration is live
// whenever the supervisor is armed.
type Supervisor struct {
	provider gfx.Provider
	graphics *compositor.GraphicsDevice
	signal   *gfx.LossSignal
	interval time.Duration
	log      log.FieldLogger

	mu           sync.Mutex
	registration gfx.Registration
	recoveries   int
	retries      int
}

// Arm registers the loss signal against dev. It must be called with
// the initial device before Run so no loss can slip by unobserved.
func (s *Supervisor) Arm(dev gfx.Device) error {
	reg, err := dev.RegisterRemovedSignal(s.signal)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.registration = reg
	s.mu.Unlock()
	return nil
}

// Run watches for device loss until ctx is cancelled or recovery
// hits a non-retriable error. A device-removed or device-reset
// failure during recovery keeps the loop retrying at the configured
// interval, any other failure is returned as is.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := s.signal.Wait(ctx); err != nil {
			return err
		}

		// Consume the fire and drop the dead registration before
		// anything else, so a stale fire cannot pass for a fresh
		// loss once the next device is in place.
		s.signal.Reset()
		s.releaseRegistration()
		s.log.Warn("rendering device lost, recovering")

		if err := s.recover(ctx); err != nil {
			return err
		}

		s.mu.Lock()
		s.recoveries++
		s.mu.Unlock()
		s.log.Info("rendering device recovered")
	}
}

// recover loops single recovery attempts until one succeeds.
func (s *Supervisor) recover(ctx context.Context) error {
	for {
		err := s.attempt()
		if err == nil {
			return nil
		}
		if !gfx.IsDeviceLoss(err) {
			return err
		}

		s.mu.Lock()
		s.retries++
		s.mu.Unlock()
		s.log.WithError(err).Info("device still unstable, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

// attempt runs one create, install, re-register sequence. A device
// that dies between installation and registration still fires the
// signal, registration against a removed device fires immediately.
func (s *Supervisor) attempt() error {
	dev, err := s.provider.CreateDevice()
	if err != nil {
		return err
	}
	if err := s.graphics.SetRenderingDevice(dev); err != nil {
		dev.Destroy()
		return err
	}

	reg, err := dev.RegisterRemovedSignal(s.signal)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.registration = reg
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) releaseRegistration() {
	s.mu.Lock()
	reg := s.registration
	s.registration = nil
	s.mu.Unlock()
	if reg != nil {
		reg.Release()
	}
}

// Signal returns the supervisor's loss signal.
func (s *Supervisor) Signal() *gfx.LossSignal {
	return s.signal
}

// Recoveries returns how many losses the supervisor has recovered
// from.
func (s *Supervisor) Recoveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recoveries
}

// Retries returns how many recovery attempts had to be repeated
// because the device was still unstable.
func (s *Supervisor) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}
