// Command ball-sim loads a TOML machine configuration, builds it against
// simulated hardware, and serves HTTP /status and /metrics endpoints
// until interrupted. It does not change any simulated switch itself.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	balldevice "github.com/ehrlich-b/go-balldevice"
	"github.com/ehrlich-b/go-balldevice/internal/eventbus"
	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
	"github.com/ehrlich-b/go-balldevice/internal/logging"
	"github.com/ehrlich-b/go-balldevice/switchsim"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML machine configuration file")
		addr       = flag.String("addr", ":8090", "address to serve the status/metrics endpoint on")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *configPath == "" {
		logger.Error("missing required -config flag")
		os.Exit(1)
	}

	cfgs, err := balldevice.LoadMachineConfig(*configPath)
	if err != nil {
		logger.Error("failed to load machine config", "error", err)
		os.Exit(1)
	}

	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	panel := switchsim.NewPanel(eventbus.SystemClock{})
	metrics := balldevice.NewMetrics()
	obs := balldevice.NewMetricsObserver(metrics)

	coils := make(map[string]*switchsim.Coil, len(cfgs))
	driverFor := func(cfg balldevice.Config) interfaces.Driver {
		coilName := cfg.EjectCoil
		if coilName == "" {
			coilName = cfg.HoldCoil
		}
		if coilName == "" {
			return nil
		}
		c, ok := coils[coilName]
		if !ok {
			c = switchsim.NewCoil()
			coils[coilName] = c
		}
		return c
	}

	machine, err := balldevice.NewMachine(cfgs, bus, delays, panel, driverFor,
		balldevice.WithLogger(logger),
		balldevice.WithObserver(obs),
	)
	if err != nil {
		logger.Error("failed to build machine", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]any)
		for _, d := range machine.Devices() {
			status[d.Name()] = map[string]any{
				"balls":    d.Balls(),
				"capacity": d.Capacity(),
				"state":    d.State(),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})
	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.Snapshot())
	})

	server := &http.Server{Addr: *addr, Handler: router}
	go func() {
		logger.Info("serving status/metrics endpoint", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("machine running", "devices", len(machine.Devices()))
	fmt.Printf("serving status at http://localhost%s/status\n", *addr)
	fmt.Printf("serving metrics at http://localhost%s/metrics\n", *addr)
	fmt.Println("press Ctrl+C to stop...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
	machine.Stop()
	metrics.Stop()
}
