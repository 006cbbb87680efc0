//go:build rp2040

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	"github.com/sirupsen/logrus"

	"linaxis/console"
	"linaxis/driver/l6474"
	"linaxis/motion"
	"linaxis/targets/pio"
)

// Board wiring
const (
	stepPin      = machine.GPIO2
	dirPin       = 3
	referencePin = 4
	csPin        = 17
	resetPin     = 20
	spiBus       = "spi0c"
	spiFrequency = 4000000 // L6474 maximum is 5 MHz
)

var (
	errPinNotConfigured = errors.New("pin not configured")
	errPinRange         = errors.New("pin outside bank 0")
)

func main() {
	// Disable watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	log := logrus.New()
	log.SetOutput(machine.Serial)
	log.SetLevel(logrus.WarnLevel)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	gpio := newGPIODriver()

	bus, err := configureSPI(spiBus, spiFrequency)
	if err != nil {
		halt(log, "spi", err)
	}
	drvCfg := l6474.DefaultConfig()
	drvCfg.CS = csPin
	drvCfg.Reset = resetPin
	driver := l6474.New(bus, gpio, drvCfg)
	if err := driver.Configure(); err != nil {
		halt(log, "driver", err)
	}

	timer, err := pio.NewPulseTimer(stepPin)
	if err != nil {
		halt(log, "pulse timer", err)
	}

	cfg := motion.DefaultConfig()
	cfg.Pins.Direction = dirPin
	cfg.Pins.Reference = referencePin
	engine, err := motion.NewEngine(cfg, motion.Hardware{
		Driver: driver,
		Timer:  timer,
		GPIO:   gpio,
		Clock:  hwClock{},
	}, log)
	if err != nil {
		halt(log, "engine", err)
	}

	con := console.New(engine, log)
	for {
		if err := con.Run(context.Background(), serialReader{}, machine.Serial); err != nil {
			log.WithError(err).Warn("console restarted")
		}
	}
}

// halt reports a fatal start-up error forever.
func halt(log logrus.FieldLogger, what string, err error) {
	for {
		log.WithError(err).Errorf("%s init failed", what)
		time.Sleep(2 * time.Second)
	}
}

// serialReader blocks until the USB serial port has data.
type serialReader struct{}

func (serialReader) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		time.Sleep(time.Millisecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}
