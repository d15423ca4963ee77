package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"heli-flight-core/utils"
)

func main() {
	var (
		iface    = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath  = flag.String("map", "config/can/heli_can_map.csv", "Path to the rig CAN map")
		scenPath = flag.String("scenario", "closed_loop/scenarios/takeoff_hover_land.json", "Scenario JSON file")
		sim      = flag.Bool("sim", false, "Run against the simulated rig instead of SocketCAN")
		uart     = flag.String("uart", "", "Serial port for telemetry (empty disables)")
		baud     = flag.Int("baud", 9600, "Telemetry baud rate")
		logPath  = flag.String("logfile", "heli_control.log", "Log file")
		logLevel = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger(*logPath, utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + *logPath + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:    *iface,
		MapPath:      *mapPath,
		ScenarioPath: *scenPath,
		Simulate:     *sim,
		UARTPort:     *uart,
		UARTBaud:     *baud,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
