// Command iec104-device wires one simulated power-grid device (Source,
// Transmission, or Load) to its simulation-bus peer and its IEC-104
// SCADA listener, then runs until SIGINT/SIGTERM. Flag-derived
// configuration stands in for a JSON config file, which this binary
// doesn't parse itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nefics/iec104grid/config"
	"github.com/nefics/iec104grid/grid"
	"github.com/nefics/iec104grid/iec104/session"
	"github.com/nefics/iec104grid/simbus"
)

var lg = logrus.StandardLogger()

func main() {
	cfg, err := loadConfig()
	if err != nil {
		lg.WithError(err).Error("iec104-device: configuration error")
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		lg.WithError(err).Error("iec104-device: fatal error")
		os.Exit(1)
	}
}

// loadConfig builds a config.DeviceConfig from command-line flags. This
// is the thin collaborator boundary: a real deployment feeds
// config.DeviceConfig from its own JSON loader, which this binary
// intentionally does not implement.
func loadConfig() (config.DeviceConfig, error) {
	var (
		class     = flag.String("class", "", "device class: Source, Transmission, or Load")
		guid      = flag.Uint("guid", 0, "this device's GUID")
		inbound   = flag.String("in", "", "comma-separated inbound neighbor GUIDs")
		outbound  = flag.String("out", "", "comma-separated outbound neighbor GUIDs")
		voltage   = flag.Float64("voltage", 0, "Source: output voltage")
		state     = flag.Uint("state", 0, "Transmission: initial breaker bitfield")
		loads     = flag.String("loads", "", "Transmission: comma-separated branch resistances in ohms")
		load      = flag.Float64("load", 0, "Load: equivalent resistance in ohms")
		listen    = flag.String("listen-addr", fmt.Sprintf(":%d", simbus.Port), "simulation bus UDP listen address")
		broadcast = flag.String("broadcast-addr", fmt.Sprintf("255.255.255.255:%d", simbus.Port), "simulation bus UDP broadcast address")
		allowConc = flag.Bool("allow-concurrent", false, "allow more than one concurrent SCADA connection")
	)
	flag.Parse()

	if *class == "" {
		return config.DeviceConfig{}, fmt.Errorf("missing -class")
	}
	in, err := parseGUIDs(*inbound)
	if err != nil {
		return config.DeviceConfig{}, fmt.Errorf("parsing -in: %w", err)
	}
	out, err := parseGUIDs(*outbound)
	if err != nil {
		return config.DeviceConfig{}, fmt.Errorf("parsing -out: %w", err)
	}
	loadList, err := parseFloats(*loads)
	if err != nil {
		return config.DeviceConfig{}, fmt.Errorf("parsing -loads: %w", err)
	}

	return config.DeviceConfig{
		Class:    *class,
		GUID:     uint32(*guid),
		Inbound:  in,
		Outbound: out,
		Parameters: config.VariantParameters{
			Voltage: float32(*voltage),
			State:   uint32(*state),
			Loads:   loadList,
			Load:    float32(*load),
		},
		ListenAddr:      *listen,
		BroadcastAddr:   *broadcast,
		AllowConcurrent: *allowConc,
	}, nil
}

func parseGUIDs(csv string) ([]uint32, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

func parseFloats(csv string) ([]float32, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(v))
	}
	return out, nil
}

// buildDevice instantiates the grid.Device named by cfg.Class, checking
// each variant's neighbor-count requirements (Source: zero inbound,
// one outbound; Load: one inbound, zero outbound; Transmission: at
// least one of each).
func buildDevice(cfg config.DeviceConfig) (grid.Device, error) {
	switch cfg.Class {
	case config.ClassSource:
		if len(cfg.Inbound) != 0 || len(cfg.Outbound) != 1 {
			return nil, fmt.Errorf("Source requires zero inbound and exactly one outbound neighbor")
		}
		return grid.NewSource(cfg.GUID, cfg.Outbound[0], cfg.Parameters.Voltage), nil
	case config.ClassTransmission:
		if len(cfg.Inbound) == 0 || len(cfg.Outbound) == 0 {
			return nil, fmt.Errorf("Transmission requires at least one inbound and one outbound neighbor")
		}
		if len(cfg.Parameters.Loads) == 0 {
			return nil, fmt.Errorf("Transmission requires at least one branch load")
		}
		return grid.NewTransmission(cfg.GUID, cfg.Inbound[0], cfg.Outbound[0], cfg.Parameters.Loads, cfg.Parameters.State), nil
	case config.ClassLoad:
		if len(cfg.Inbound) != 1 || len(cfg.Outbound) != 0 {
			return nil, fmt.Errorf("Load requires exactly one inbound and zero outbound neighbors")
		}
		return grid.NewLoad(cfg.GUID, cfg.Inbound[0], cfg.Parameters.Load), nil
	default:
		return nil, fmt.Errorf("unknown device class %q", cfg.Class)
	}
}

// run wires device, bus, and listener together and blocks until an
// operator signal initiates shutdown.
func run(cfg config.DeviceConfig) error {
	device, err := buildDevice(cfg)
	if err != nil {
		return err
	}

	bus, err := simbus.NewBus(simbus.Config{
		GUID:          cfg.GUID,
		Inbound:       cfg.Inbound,
		Outbound:      cfg.Outbound,
		ListenAddr:    cfg.ListenAddr,
		BroadcastAddr: cfg.BroadcastAddr,
	})
	if err != nil {
		return fmt.Errorf("simbus: %w", err)
	}
	bus.SetHandler(func(msg simbus.Message, fromInbound bool) *simbus.Message {
		return device.HandlePeerMessage(msg, fromInbound)
	})

	listener, err := session.NewListener(fmt.Sprintf(":%d", session.Port), device, cfg.AllowConcurrent)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		lg.WithField("signal", sig).Info("iec104-device: shutting down")
		cancel()
	}()

	lg.WithFields(logrus.Fields{"guid": cfg.GUID, "class": cfg.Class}).Info("iec104-device: starting")

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); bus.Run(ctx) }()
	go func() { defer wg.Done(); tickLoop(ctx, device, bus) }()
	go func() { defer wg.Done(); listener.Serve(ctx) }()
	go func() { defer wg.Done(); statusLoop(ctx, device) }()
	wg.Wait()

	lg.Info("iec104-device: stopped cleanly")
	return nil
}

// tickLoop drives the device's continuous physical simulation until
// ctx is canceled; each SimulationTick call sleeps internally, so this
// loop is the entirety of the device's physical thread.
func tickLoop(ctx context.Context, device grid.Device, bus *simbus.Bus) {
	for ctx.Err() == nil {
		device.SimulationTick(bus)
	}
}

// statusLoop prints a human-readable status dump every 10s, the
// non-SCADA operator-visible equivalent of iec104_main()'s
// clearscreen()+status() loop (without the terminal clearing, which
// doesn't belong in a long-running service log).
func statusLoop(ctx context.Context, device grid.Device) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "=== device %d ===\n%s", device.GUID(), device.String())
		}
	}
}
