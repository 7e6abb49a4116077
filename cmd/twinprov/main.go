// twinprov - FIWARE digital twin provisioning
//
// twinprov turns descriptor files (CSV or YAML) into digital twins on a
// FIWARE platform: direct entities in the Orion Context Broker, devices
// and service groups on the IoT-Agent north port. It can also retract
// what it provisioned, render the parsed objects as markdown for review,
// and publish simulated measurements over MQTT to exercise a freshly
// provisioned device end to end.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/wastetwin/provision-core/internal/fiware"
	"github.com/wastetwin/provision-core/internal/infrastructure/config"
	"github.com/wastetwin/provision-core/internal/infrastructure/journal"
	"github.com/wastetwin/provision-core/internal/infrastructure/logging"
	"github.com/wastetwin/provision-core/internal/infrastructure/mqtt"
	"github.com/wastetwin/provision-core/internal/pipeline"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Exit codes.
const (
	exitOK    = 0
	exitRun   = 1 // records failed or conflicted
	exitUsage = 2 // bad arguments or configuration
)

func main() {
	// Cancel the run context on interrupt signals (Ctrl+C, SIGTERM) so
	// in-flight provisioning calls are abandoned cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:]))
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//
// Returns:
//   - int: Process exit code
func run(ctx context.Context, args []string) int {
	global := flag.NewFlagSet("twinprov", flag.ContinueOnError)
	configPath := global.String("config", getConfigPath(), "configuration file path")
	global.Usage = usage
	if err := global.Parse(args); err != nil {
		return exitUsage
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage()
		return exitUsage
	}
	command, rest := rest[0], rest[1:]

	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading config", "path", *configPath, "error", err)
		return exitUsage
	}
	log = logging.New(cfg.Logging, version)
	log.Info("starting twinprov",
		"version", version,
		"commit", commit,
		"build_date", date,
		"command", command,
	)

	switch command {
	case "run":
		return runProvision(ctx, cfg, log, rest)
	case "render":
		return runRender(cfg, log, rest)
	case "simulate":
		return runSimulate(cfg, log, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		return exitUsage
	}
}

// runProvision executes a create or delete run over descriptor files.
func runProvision(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	doDelete := fs.Bool("delete", false, "retract the described objects instead of provisioning them")
	failFast := fs.Bool("fail-fast", false, "stop at the first failed record")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "run: at least one descriptor file or directory is required")
		return exitUsage
	}

	var j *journal.Journal
	if cfg.Journal.Enabled {
		var err error
		j, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Error("opening run journal", "path", cfg.Journal.Path, "error", err)
			return exitUsage
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Error("closing run journal", "error", err)
			}
		}()
	}

	driver := pipeline.New(fiware.New(cfg), pipeline.Options{
		DefaultProtocol: cfg.Platform.DefaultProtocol,
		FailFast:        *failFast,
		Journal:         j,
		Logger:          log,
	})

	mode := pipeline.Create
	if *doDelete {
		mode = pipeline.Delete
	}

	report, err := driver.Run(ctx, paths, mode)
	if report != nil {
		fmt.Println(report.Summary())
		if report.RunID != "" {
			fmt.Printf("journal run id: %s\n", report.RunID)
		}
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrRowsFailed), errors.Is(err, pipeline.ErrAborted):
		log.Error("run incomplete", "error", err)
		return exitRun
	default:
		log.Error("run failed", "error", err)
		return exitRun
	}
}

// runRender prints the parsed descriptors as markdown on stdout.
func runRender(cfg *config.Config, log *logging.Logger, paths []string) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "render: at least one descriptor file or directory is required")
		return exitUsage
	}
	if err := pipeline.Render(os.Stdout, paths, cfg.Platform.DefaultProtocol); err != nil {
		log.Error("rendering descriptors", "error", err)
		return exitRun
	}
	return exitOK
}

// runSimulate publishes one measurement for a provisioned device.
func runSimulate(cfg *config.Config, log *logging.Logger, args []string) int {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	apiKey := fs.String("apikey", "", "API key of the device's service group")
	deviceID := fs.String("device", "", "device id the measurement belongs to")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *apiKey == "" || *deviceID == "" {
		fmt.Fprintln(os.Stderr, "simulate: -apikey and -device are required")
		return exitUsage
	}

	payload, err := parseMeasurements(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		return exitUsage
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Error("connecting to MQTT broker",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"error", err,
		)
		return exitRun
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error("closing MQTT connection", "error", err)
		}
	}()

	if err := client.PublishMeasurement(*apiKey, *deviceID, payload); err != nil {
		log.Error("publishing measurement", "device", *deviceID, "error", err)
		return exitRun
	}
	log.Info("measurement published",
		"topic", mqtt.MeasurementTopic(*apiKey, *deviceID),
		"payload", string(payload),
	)
	return exitOK
}

// parseMeasurements turns key=value arguments into the JSON object the
// IoT-Agent expects on the southbound topic. Values that parse as
// numbers or booleans are sent as such, everything else as a string.
func parseMeasurements(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one key=value measurement is required")
	}
	measures := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed measurement %q, want key=value", arg)
		}
		switch {
		case value == "true" || value == "false":
			measures[key] = value == "true"
		default:
			if number, err := strconv.ParseFloat(value, 64); err == nil {
				measures[key] = number
			} else {
				measures[key] = value
			}
		}
	}
	return json.Marshal(measures)
}

// getConfigPath returns the configuration file path.
// Uses TWINPROV_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TWINPROV_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: twinprov [-config path] <command> [flags] [args]

commands:
  run [-delete] [-fail-fast] <paths...>   provision (or retract) descriptor files
  render <paths...>                       print parsed objects as markdown
  simulate -apikey K -device D k=v ...    publish a device measurement over MQTT

Descriptor paths may be .csv or .yml/.yaml files, or directories of them.
`)
}
