// Package sim runs a simulated ITLA device behind a pseudo-terminal, for demos
// and tests without hardware.
package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Initial setpoints, matching the demo panel of the control program.
const (
	DefaultFrequencyTHz = 193.5
	DefaultPowerDBm     = 5.25
	DefaultTemperatureC = 25.3
)

// Device answers the ITLA line protocol on the slave side of a pty. It prints
// a telemetry frame every interval and applies the commands it receives.
type Device struct {
	master   *os.File
	slave    *os.File
	interval time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	freq    float64
	power   float64
	temp    float64
	laserOn bool
	rng     *rand.Rand

	done chan struct{}
	wg   sync.WaitGroup
}

// Start opens a pty and starts the device. interval <= 0 disables periodic
// telemetry; Emit can still send frames.
func Start(interval time.Duration) (*Device, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("sim: open pty: %w", err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("sim: raw mode: %w", err)
	}
	master, err = pollable(master)
	if err != nil {
		slave.Close()
		return nil, fmt.Errorf("sim: %w", err)
	}

	d := &Device{
		master:   master,
		slave:    slave,
		interval: interval,
		freq:     DefaultFrequencyTHz,
		power:    DefaultPowerDBm,
		temp:     DefaultTemperatureC,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.commandLoop()
	if interval > 0 {
		d.wg.Add(1)
		go d.telemetryLoop()
	}
	return d, nil
}

// Port returns the device path a link should open.
func (d *Device) Port() string {
	return d.slave.Name()
}

// Setpoints returns the frequency, power and laser state the device holds.
func (d *Device) Setpoints() (freqTHz, powerDBm float64, laserOn bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freq, d.power, d.laserOn
}

// Emit writes one raw line to the link.
func (d *Device) Emit(line string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.master.WriteString(line + "\n")
	return err
}

// EmitTelemetry writes one telemetry frame with the current setpoints.
func (d *Device) EmitTelemetry() error {
	d.mu.Lock()
	// Temperature wanders a little around the TEC setpoint.
	d.temp = DefaultTemperatureC + (d.rng.Float64()-0.5)*0.1
	frame := struct {
		Freq  float64 `json:"freq"`
		Power float64 `json:"power"`
		Temp  float64 `json:"temp"`
	}{d.freq, d.power, d.temp}
	d.mu.Unlock()

	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return d.Emit(string(raw))
}

// Close stops the device and releases the pty. The link side sees a hang-up.
// It does not wait for the link to close its end.
func (d *Device) Close() error {
	select {
	case <-d.done:
		return nil
	default:
	}
	close(d.done)
	err := d.master.Close()
	d.wg.Wait()
	d.slave.Close()
	return err
}

func (d *Device) telemetryLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			if err := d.EmitTelemetry(); err != nil {
				return
			}
		}
	}
}

func (d *Device) commandLoop() {
	defer d.wg.Done()
	scanner := bufio.NewScanner(d.master)
	for scanner.Scan() {
		reply := d.apply(strings.TrimSpace(scanner.Text()))
		if reply == "" {
			continue
		}
		if err := d.Emit(reply); err != nil {
			return
		}
	}
}

// apply executes one command line and returns the device's log reply.
func (d *Device) apply(line string) string {
	if line == "" {
		return ""
	}
	name, arg, _ := strings.Cut(line, " ")

	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case "SET_FREQUENCY":
		v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return "ERROR bad frequency: " + arg
		}
		d.freq = v
		return fmt.Sprintf("Frequency set to %.6f THz", v)
	case "SET_POWER":
		v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return "ERROR bad power: " + arg
		}
		d.power = v
		return fmt.Sprintf("Power set to %.3f dBm", v)
	case "LASER_ON":
		d.laserOn = true
		return "Laser turned ON"
	case "LASER_OFF":
		d.laserOn = false
		return "Laser turned OFF"
	default:
		return "ERROR unknown command: " + line
	}
}
