package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"linaxis/config"
	"linaxis/host/serial"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config, ignored for USB CDC)")
	list       = flag.Bool("list", false, "List serial ports and exit")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *list {
		ports, err := serial.ListPorts()
		if err != nil {
			log.Fatalf("%v", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	log.SetLevel(cfg.Level())
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	sc := serial.DefaultConfig(cfg.Serial.Device)
	sc.Baud = cfg.Serial.Baud
	sc.ReadTimeout = time.Duration(cfg.Serial.ReadTimeoutMs) * time.Millisecond
	if *device != "" {
		sc.Device = *device
	}
	if *baud != 0 {
		sc.Baud = *baud
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	port, err := serial.Open(sc)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.WithFields(log.Fields{"device": port.Device(), "baud": sc.Baud}).Info("port open")
	if err := port.Flush(); err != nil {
		log.WithError(err).Warn("dropping stale input failed")
	}
	conn := serial.NewLineConn(port)
	defer conn.Close()

	go func() {
		err := conn.ReadLines(ctx, func(line string) {
			fmt.Println(line)
		})
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("serial read failed")
		}
		cancel()
	}()

	fmt.Println("Enter console commands ('quit' to exit):")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.WithError(err).Error("reading input failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "quit", "exit", "q":
				return
			}
			log.WithField("line", line).Debug("send")
			if err := conn.WriteLine(line); err != nil {
				log.WithError(err).Error("serial write failed")
				return
			}
		}
	}
}
