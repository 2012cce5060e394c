// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package watchdog_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/devblok/kompo/compositor"
	"github.com/devblok/kompo/gfx"
	"github.com/devblok/kompo/gfx/swr"
	"github.com/devblok/kompo/watchdog"
	log "github.com/sirupsen/logrus"
)

type rig struct {
	provider *swr.Provider
	graphics *compositor.GraphicsDevice
	sup      *watchdog.Supervisor
}

func newRig(t *testing.T) *rig {
	provider := swr.NewProvider()
	dev, err := provider.CreateDevice()
	if err != nil {
		t.Fatalf("CreateDevice: %s", err.Error())
	}
	graphics, err := compositor.NewGraphicsDevice(dev, compositor.Configuration{
		AtlasWidth:  64,
		AtlasHeight: 64,
	})
	if err != nil {
		t.Fatalf("NewGraphicsDevice: %s", err.Error())
	}
	sup := watchdog.New(provider, graphics,
		watchdog.WithRetryInterval(time.Millisecond),
		watchdog.WithLogger(quietLogger()),
	)
	if err := sup.Arm(dev); err != nil {
		t.Fatalf("Arm: %s", err.Error())
	}
	return &rig{provider: provider, graphics: graphics, sup: sup}
}

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func startRun(r *rig) (context.CancelFunc, chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.sup.Run(ctx)
	}()
	return cancel, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for " + what)
}

func pattern(size image.Point) []byte {
	pix := make([]byte, size.X*size.Y*gfx.BytesPerPixel)
	for i := range pix {
		pix[i] = byte(i*13 + 1)
	}
	return pix
}

func redraw(graphics *compositor.GraphicsDevice, surface *compositor.DrawingSurface, pix []byte, size image.Point) error {
	dev := graphics.RenderingDevice()
	tex, err := dev.CreateTexture(size, pix)
	if err != nil {
		return err
	}
	defer tex.Release()

	if err := surface.Resize(size); err != nil {
		return err
	}
	backing, origin, err := surface.BeginDraw()
	if err != nil {
		return err
	}
	defer surface.EndDraw()
	return dev.Copy(backing, origin, tex, image.Rectangle{Max: size})
}

func TestRecoveryReplacesDevice(t *testing.T) {
	r := newRig(t)

	size := image.Pt(4, 4)
	surface, err := r.graphics.CreateDrawingSurface(size)
	if err != nil {
		t.Fatalf("CreateDrawingSurface: %s", err.Error())
	}
	content := pattern(size)
	if err := redraw(r.graphics, surface, content, size); err != nil {
		t.Fatalf("initial draw: %s", err.Error())
	}

	var mu sync.Mutex
	redraws := 0
	r.graphics.RenderingDeviceReplaced(func(g *compositor.GraphicsDevice) {
		if err := redraw(g, surface, content, size); err != nil {
			t.Errorf("redraw after replacement: %s", err.Error())
		}
		mu.Lock()
		redraws++
		mu.Unlock()
	})

	cancel, done := startRun(r)
	defer cancel()

	r.provider.Last().SimulateLoss()
	waitFor(t, "recovery", func() bool { return r.sup.Recoveries() == 1 })

	if created := r.provider.Created(); created != 2 {
		t.Errorf("expected exactly one device re-creation, %d devices created in total", created)
	}
	fresh := r.provider.Last()
	if r.graphics.RenderingDevice() != fresh {
		t.Error("graphics device is not using the fresh device")
	}
	if regs := fresh.Registrations(); regs != 1 {
		t.Errorf("expected exactly one live registration on the fresh device, got %d", regs)
	}
	if got := r.sup.Signal().Registered(); got != fresh {
		t.Error("loss signal is not registered against the fresh device")
	}

	mu.Lock()
	count := redraws
	mu.Unlock()
	if count != 1 {
		t.Errorf("expected exactly one redraw, got %d", count)
	}

	snap, err := surface.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %s", err.Error())
	}
	if !bytes.Equal(snap, content) {
		t.Error("surface content changed across recovery")
	}

	select {
	case err := <-done:
		t.Fatalf("supervisor exited: %v", err)
	default:
	}
}

func TestPersistentRemovalKeepsRetrying(t *testing.T) {
	r := newRig(t)
	r.provider.FailWith(&gfx.DeviceError{
		Op:   "CreateDevice",
		Code: gfx.ErrCodeDeviceRemoved,
		Msg:  "adapter unplugged",
	}, 10000)

	cancel, done := startRun(r)
	defer cancel()

	r.provider.Last().SimulateLoss()
	waitFor(t, "three retries", func() bool { return r.sup.Retries() >= 3 })

	if r.sup.Recoveries() != 0 {
		t.Errorf("expected no completed recovery, got %d", r.sup.Recoveries())
	}
	select {
	case err := <-done:
		t.Fatalf("supervisor gave up on a retriable failure: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}
}

func TestFatalErrorStopsRecovery(t *testing.T) {
	r := newRig(t)
	fatal := errors.New("out of handles")
	r.provider.FailWith(fatal, 1)

	cancel, done := startRun(r)
	defer cancel()

	r.provider.Last().SimulateLoss()

	select {
	case err := <-done:
		if err != fatal {
			t.Fatalf("expected the creation error to propagate, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not propagate the fatal error")
	}
	if retries := r.sup.Retries(); retries != 0 {
		t.Errorf("expected no retries for a non-retriable failure, got %d", retries)
	}
	if created := r.provider.Created(); created != 1 {
		t.Errorf("expected no device re-creation, %d devices created in total", created)
	}
}

func TestInstallFailureRetries(t *testing.T) {
	r := newRig(t)
	r.provider.RemoveNext(2)

	cancel, done := startRun(r)
	defer cancel()

	r.provider.Last().SimulateLoss()
	waitFor(t, "recovery", func() bool { return r.sup.Recoveries() == 1 })

	if retries := r.sup.Retries(); retries != 2 {
		t.Errorf("expected two retries for two dead devices, got %d", retries)
	}
	if created := r.provider.Created(); created != 4 {
		t.Errorf("expected four devices created in total, got %d", created)
	}
	fresh := r.provider.Last()
	if regs := fresh.Registrations(); regs != 1 {
		t.Errorf("expected exactly one live registration on the fresh device, got %d", regs)
	}

	select {
	case err := <-done:
		t.Fatalf("supervisor exited: %v", err)
	default:
	}
}

func TestLossBeforeRunIsObserved(t *testing.T) {
	r := newRig(t)

	// The signal is armed before Run waits on it, a loss in between
	// must not be missed.
	r.provider.Last().SimulateLoss()

	cancel, _ := startRun(r)
	defer cancel()

	waitFor(t, "recovery", func() bool { return r.sup.Recoveries() == 1 })
	if created := r.provider.Created(); created != 2 {
		t.Errorf("expected exactly one device re-creation, %d devices created in total", created)
	}
}

func TestRapidDoubleLoss(t *testing.T) {
	r := newRig(t)
	r.provider.RemoveNext(1)

	cancel, done := startRun(r)
	defer cancel()

	r.provider.Last().SimulateLoss()
	waitFor(t, "first retry", func() bool { return r.sup.Retries() >= 1 })

	// A duplicate loss notification lands while the first recovery is
	// still in flight.
	r.sup.Signal().Fire()
	waitFor(t, "second recovery", func() bool { return r.sup.Recoveries() == 2 })

	fresh := r.provider.Last()
	if regs := fresh.Registrations(); regs != 1 {
		t.Errorf("expected exactly one live registration, got %d", regs)
	}
	if got := r.sup.Signal().Registered(); got != fresh {
		t.Error("loss signal is not registered against the latest device")
	}

	select {
	case err := <-done:
		t.Fatalf("supervisor exited: %v", err)
	default:
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t)
	cancel, done := startRun(r)

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}
}
