package motion

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"linaxis/core"
)

// fakeTimer records arms. Tests fire completions with complete().
type fakeTimer struct {
	mu        sync.Mutex
	handler   func()
	arms      []uint16
	disables  int
	prescaler uint16
	reload    uint16
	armed     bool
	armErr    error
	configErr error
}

func (t *fakeTimer) Configure(prescaler, reload uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.configErr != nil {
		return t.configErr
	}
	t.prescaler, t.reload = prescaler, reload
	return nil
}

func (t *fakeTimer) Arm(count uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armErr != nil {
		return t.armErr
	}
	t.arms = append(t.arms, count)
	t.armed = true
	return nil
}

func (t *fakeTimer) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disables++
	t.armed = false
}

func (t *fakeTimer) SetCompletionHandler(fn func()) { t.handler = fn }

func (t *fakeTimer) ClockFrequency() physic.Frequency { return 90 * physic.MegaHertz }

// complete raises the completion interrupt if a chunk is armed.
func (t *fakeTimer) complete() bool {
	t.mu.Lock()
	armed := t.armed
	t.armed = false
	t.mu.Unlock()
	if !armed {
		return false
	}
	core.RunISR(t.handler)
	return true
}

func (t *fakeTimer) armCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.arms)
}

func (t *fakeTimer) totalPulses() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n uint64
	for _, a := range t.arms {
		n += uint64(a)
	}
	return n
}

// fakeDriver is an in-memory driver chip.
type fakeDriver struct {
	mu         sync.Mutex
	pos        int32
	powered    bool
	resolution int
	status     core.DriverStatus
	statusErr  error
	powerErr   error
	params     map[core.ElectricalParam]float64
	resets     int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{resolution: 16, params: make(map[core.ElectricalParam]float64)}
}

func (d *fakeDriver) AbsolutePosition() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos, nil
}

func (d *fakeDriver) SetAbsolutePosition(pos int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = pos
	return nil
}

func (d *fakeDriver) Status() (core.DriverStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status
	st.HighZ = !d.powered
	return st, d.statusErr
}

func (d *fakeDriver) SetPowerOutputs(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.powerErr != nil {
		return d.powerErr
	}
	d.powered = enabled
	return nil
}

func (d *fakeDriver) SetStepMode(resolution int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolution = resolution
	return nil
}

func (d *fakeDriver) SetElectrical(p core.ElectricalParam, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params[p] = value
	return nil
}

func (d *fakeDriver) Electrical(p core.ElectricalParam) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.params[p]
	if !ok {
		return 0, errors.New("parameter not set")
	}
	return v, nil
}

func (d *fakeDriver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	d.powered = false
	d.pos = 0
	d.resolution = 16 // boot default
	return nil
}

func (d *fakeDriver) isPowered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powered
}

// fakeGPIO keeps pin levels in a map.
type fakeGPIO struct {
	mu   sync.Mutex
	pins map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{pins: make(map[core.GPIOPin]bool)}
}

func (g *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error { return nil }

func (g *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	g.SetPin(pin, true)
	return nil
}

func (g *fakeGPIO) ConfigureInputPullDown(pin core.GPIOPin) error {
	g.SetPin(pin, false)
	return nil
}

func (g *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pins[pin] = value
	return nil
}

func (g *fakeGPIO) ReadPin(pin core.GPIOPin) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pins[pin], nil
}

// fakeClock is virtual time. Each Sleep advances it and calls onSleep.
type fakeClock struct {
	now     time.Duration
	sleeps  int
	onSleep func(now time.Duration)
}

func (c *fakeClock) Now() time.Duration { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now += d
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep(c.now)
	}
}

const (
	dirPin core.GPIOPin = 2
	refPin core.GPIOPin = 3
)

type rig struct {
	engine *Engine
	timer  *fakeTimer
	driver *fakeDriver
	gpio   *fakeGPIO
	clock  *fakeClock
}

func newRig(t interface{ Fatalf(string, ...interface{}) }) *rig {
	r := &rig{
		timer:  &fakeTimer{},
		driver: newFakeDriver(),
		gpio:   newFakeGPIO(),
		clock:  &fakeClock{},
	}
	cfg := DefaultConfig()
	cfg.Pins.Direction = dirPin
	cfg.Pins.Reference = refPin
	e, err := NewEngine(cfg, Hardware{Driver: r.driver, Timer: r.timer, GPIO: r.gpio, Clock: r.clock}, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	r.engine = e
	return r
}

// ready powers the rig and marks it referenced at pos.
func (r *rig) ready(pos int32) {
	r.driver.SetAbsolutePosition(pos)
	r.engine.SetPower(true)
	r.engine.referenced.Store(true)
}

// setSensor drives the reference line; the sensor is active low.
func (r *rig) setSensor(asserted bool) {
	r.gpio.SetPin(refPin, !asserted)
}

// drain completes chunks until the counter stops, applying pulses to the
// driver position in the current direction.
func (r *rig) drain() {
	for r.engine.counter.Running() {
		r.timer.mu.Lock()
		var last uint16
		if n := len(r.timer.arms); n > 0 {
			last = r.timer.arms[n-1]
		}
		r.timer.mu.Unlock()
		if !r.timer.complete() {
			continue
		}
		forward, _ := r.gpio.ReadPin(dirPin)
		r.driver.mu.Lock()
		if forward {
			r.driver.pos += int32(last)
		} else {
			r.driver.pos -= int32(last)
		}
		r.driver.mu.Unlock()
	}
}
