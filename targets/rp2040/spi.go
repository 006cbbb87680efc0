//go:build rp2040

package main

import (
	"errors"
	"machine"
)

// RP2040 SPI bus configurations.
// Each bus specifies which SPI controller and GPIO pins to use

type spiBusConfig struct {
	spi  *machine.SPI // SPI controller (SPI0 or SPI1)
	sck  machine.Pin  // Clock pin
	mosi machine.Pin  // Master Out Slave In
	miso machine.Pin  // Master In Slave Out
}

var rp2040SPIBuses = map[string]spiBusConfig{
	"spi0a": {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0},
	"spi0b": {spi: machine.SPI0, sck: machine.GPIO6, mosi: machine.GPIO7, miso: machine.GPIO4},
	"spi0c": {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16},
	"spi0d": {spi: machine.SPI0, sck: machine.GPIO22, mosi: machine.GPIO23, miso: machine.GPIO20},
	"spi1a": {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8},
	"spi1b": {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12},
	"spi1c": {spi: machine.SPI1, sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO24},
}

var errInvalidBus = errors.New("invalid SPI bus")

// configureSPI sets up a hardware SPI bus for the driver chip. The L6474
// samples on the rising edge with an idle-high clock (mode 3).
func configureSPI(bus string, frequency uint32) (*machine.SPI, error) {
	busConfig, exists := rp2040SPIBuses[bus]
	if !exists {
		return nil, errInvalidBus
	}

	spi := busConfig.spi
	err := spi.Configure(machine.SPIConfig{
		Frequency: frequency,
		SCK:       busConfig.sck,
		SDO:       busConfig.mosi, // SDO = Serial Data Out (MOSI)
		SDI:       busConfig.miso, // SDI = Serial Data In (MISO)
		Mode:      3,
	})
	if err != nil {
		return nil, err
	}
	return spi, nil
}
