package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"linaxis/config"
	"linaxis/console"
	"linaxis/core"
	"linaxis/motion"
	"linaxis/sim"
	"linaxis/targets/periph"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	sensorGPIO = flag.Int("sensor-gpio", -1, "Read the reference sensor from this host GPIO instead of the simulation")
	tick       = flag.Duration("tick", time.Millisecond, "Simulation step")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(cfg.Level())
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	mc, err := cfg.EngineConfig()
	if err != nil {
		logger.Fatalf("invalid motion config: %v", err)
	}
	sc := cfg.SimMachine()
	sc.Realtime = true
	m := sim.New(sc)

	var gpio core.GPIODriver = m.GPIO()
	if *sensorGPIO >= 0 {
		if err := periph.Init(); err != nil {
			logger.Fatalf("%v", err)
		}
		mc.Pins.Reference = core.GPIOPin(*sensorGPIO)
		gpio = &splitGPIO{
			GPIODriver: m.GPIO(),
			host:       periph.NewGPIODriver(),
			sensor:     mc.Pins.Reference,
		}
		logger.WithField("pin", *sensorGPIO).Info("reference sensor on host GPIO")
	}

	engine, err := motion.NewEngine(mc, motion.Hardware{
		Driver: m.Driver(),
		Timer:  m.Timer(),
		GPIO:   gpio,
		Clock:  m,
	}, logger)
	if err != nil {
		logger.Fatalf("failed to start engine: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() {
		if err := m.Run(ctx, *tick); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("simulation stopped")
		}
	}()

	info := m.Timer().Info()
	logger.WithFields(log.Fields{
		"timer":        info.Name,
		"clock":        m.Timer().ClockFrequency(),
		"sensor_steps": sc.SensorSteps,
	}).Info("simulated axis ready")
	fmt.Println("linaxis simulator, type 'help' for commands")

	con := console.New(engine, logger)
	done := make(chan error, 1)
	go func() {
		done <- con.Run(ctx, os.Stdin, os.Stdout)
	}()
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("console stopped")
		}
	case <-ctx.Done():
	}
	engine.Cancel()
}

// splitGPIO serves the reference sensor from the host and every other line
// from the simulation.
type splitGPIO struct {
	core.GPIODriver
	host   core.GPIODriver
	sensor core.GPIOPin
}

func (g *splitGPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	if pin == g.sensor {
		return g.host.ConfigureInputPullUp(pin)
	}
	return g.GPIODriver.ConfigureInputPullUp(pin)
}

func (g *splitGPIO) ConfigureInputPullDown(pin core.GPIOPin) error {
	if pin == g.sensor {
		return g.host.ConfigureInputPullDown(pin)
	}
	return g.GPIODriver.ConfigureInputPullDown(pin)
}

func (g *splitGPIO) ReadPin(pin core.GPIOPin) (bool, error) {
	if pin == g.sensor {
		return g.host.ReadPin(pin)
	}
	return g.GPIODriver.ReadPin(pin)
}
