// itlactl drives an ITLA laser-control device from the terminal. It connects,
// prints telemetry and device log lines as they are drained every tick, and
// reads commands from stdin.
//
// Stdin commands:
//
//	freq <THz>    set the laser frequency
//	power <dBm>   set the output power
//	on | off      switch the laser
//	connect       reconnect after a disconnect
//	disconnect    close the link
//	state         print link state, laser state and last telemetry
//	quit          exit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	itla "github.com/luhtfiimanal/go-itla"
	"github.com/luhtfiimanal/go-itla/serial"
	"github.com/luhtfiimanal/go-itla/sim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listPorts  bool
		demo       bool
	)
	cfg := itla.DefaultConfig()

	flagSet := pflag.NewFlagSet("itlactl", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file")
	flagSet.StringVar(&cfg.Port, "port", "", "serial device, example /dev/ttyUSB0")
	flagSet.IntVar(&cfg.Baud, "baud", cfg.Baud, "baud rate")
	flagSet.StringVar(&cfg.Backend, "backend", cfg.Backend, "serial backend: auto, termios or portable")
	flagSet.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "reader poll timeout")
	flagSet.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "event queue capacity")
	flagSet.DurationVar(&cfg.Tick, "tick", cfg.Tick, "event drain interval")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flagSet.BoolVar(&listPorts, "list-ports", false, "list serial ports and exit")
	flagSet.BoolVar(&demo, "demo", false, "talk to a simulated device")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if configPath != "" {
		fileCfg, err := itla.LoadConfig(configPath)
		if err != nil {
			return err
		}
		// Explicit flags win over the file.
		flagSet.Visit(func(f *pflag.Flag) { overlayFlag(fileCfg, &cfg, f.Name) })
		cfg = *fileCfg
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if listPorts {
		ports, err := serial.ListPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	if demo {
		dev, err := sim.Start(time.Second)
		if err != nil {
			return err
		}
		defer dev.Close()
		cfg.Port = dev.Port()
		logger.Info().Str("port", cfg.Port).Msg("demo device started")
	}
	if cfg.Port == "" {
		return errors.New("no port given, use --port, --demo or --list-ports")
	}

	reg := prometheus.NewRegistry()
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts = append(opts, itla.WithLogger(logger), itla.WithMetrics(itla.NewMetrics(reg)))
	link := itla.NewLink(opts...)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := link.Connect(cfg.Port, cfg.Baud); err != nil {
		return err
	}
	defer link.Disconnect()

	return controlLoop(ctx, link, cfg, readCommands(os.Stdin))
}

// controlLoop is the single goroutine that owns the link.
func controlLoop(ctx context.Context, link *itla.Link, cfg itla.Config, commands <-chan string) error {
	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, ev := range link.PollEvents() {
				printEvent(ev)
			}
		case line, ok := <-commands:
			if !ok {
				return nil
			}
			quit, err := handleCommand(link, cfg, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleCommand(link *itla.Link, cfg itla.Config, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "freq", "power":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: %s <value>", fields[0])
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return false, fmt.Errorf("invalid value %q", fields[1])
		}
		if strings.EqualFold(fields[0], "freq") {
			return false, link.SendCommand(itla.SetFrequency(v))
		}
		return false, link.SendCommand(itla.SetPower(v))
	case "on":
		if err := link.SendCommand(itla.LaserOn); err != nil {
			return false, err
		}
		link.SetLaserState(itla.LaserStateOn)
	case "off":
		if err := link.SendCommand(itla.LaserOff); err != nil {
			return false, err
		}
		link.SetLaserState(itla.LaserStateOff)
	case "connect":
		return false, link.Connect(cfg.Port, cfg.Baud)
	case "disconnect":
		link.Disconnect()
	case "state":
		fmt.Printf("link: %s\nlaser: %s\n", link.CurrentState(), link.LaserState())
		if sample, ok := link.Telemetry(); ok {
			fmt.Printf("telemetry: %s\n", sample)
		}
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	return false, nil
}

func printEvent(ev itla.Event) {
	switch ev.Kind {
	case itla.EventTelemetry:
		fmt.Println(ev.Telemetry)
	case itla.EventLogText:
		fmt.Printf("[RX] %s\n", ev.Text)
	case itla.EventMalformed:
		fmt.Printf("[RX?] %s (%v)\n", ev.Text, ev.Err)
	case itla.EventDisconnected:
		fmt.Printf("link lost: %v\n", ev.Err)
	}
}

// readCommands feeds stdin lines to the control loop.
func readCommands(f *os.File) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

func overlayFlag(dst, src *itla.Config, name string) {
	switch name {
	case "port":
		dst.Port = src.Port
	case "baud":
		dst.Baud = src.Baud
	case "backend":
		dst.Backend = src.Backend
	case "read-timeout":
		dst.ReadTimeout = src.ReadTimeout
	case "queue-size":
		dst.QueueSize = src.QueueSize
	case "tick":
		dst.Tick = src.Tick
	case "metrics-addr":
		dst.MetricsAddr = src.MetricsAddr
	case "log-level":
		dst.LogLevel = src.LogLevel
	}
}
