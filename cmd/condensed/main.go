package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dray-io/fimcondense/internal/config"
	"github.com/dray-io/fimcondense/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// envFile is loaded into the environment before any config is read.
const envFile = ".env"

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("condensed version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "run":
		runCondenser(os.Args[2:])
	case "check":
		os.Exit(runCheck(os.Args[2:]))
	case "version":
		fmt.Printf("condensed version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: condensed <command> [options]

Commands:
  run         Start the condensing pipeline
  check       Verify the document store is reachable and print the configuration
  version     Print version information

Run 'condensed <command> --help' for more information on a command.`)
}

// loadConfig loads .env, then the config file at path (or the default
// lookup when path is empty).
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func runCondenser(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	healthAddr := fs.String("health-addr", "", "Override health endpoint address (e.g., :9090)")
	instanceID := fs.String("instance-id", "", "Override instance ID (default: auto-generated UUID)")
	index := fs.String("index", "", "Override the index pattern to condense")

	fs.Usage = func() {
		fmt.Println(`Usage: condensed run [options]

Start the condensing pipeline.

The condenser finds files with more than one stored event, keeps the newest
event of each (none when the file was moved or deleted) and deletes the rest
in batches.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides
	if *healthAddr != "" {
		cfg.Observability.MetricsAddr = *healthAddr
	}
	if *index != "" {
		cfg.Index = *index
	}

	logger, logFile, err := logging.Setup(cfg.Observability.LogLevel, cfg.Observability.LogFormat, cfg.Observability.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	hostname, _ := os.Hostname()
	opts := CondenserOptions{
		Config:     cfg,
		Logger:     logger,
		InstanceID: *instanceID,
		Hostname:   hostname,
		Version:    version,
		GitCommit:  gitCommit,
		BuildTime:  buildTime,
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.New().String()
	}

	condenser, err := NewCondenser(opts)
	if err != nil {
		logger.Errorf("failed to create condenser", logging.Fields{"error": err})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- condenser.Start(ctx)
	}()

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Infof("received shutdown signal", logging.Fields{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			logger.Errorf("condenser error", logging.Fields{"error": err})
			exitCode = 1
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := condenser.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", logging.Fields{"error": err})
		exitCode = 1
	}

	if exitCode != 0 {
		logFile.Close()
		os.Exit(exitCode)
	}
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	timeout := fs.Duration("timeout", 10*time.Second, "Timeout for the store ping")

	fs.Usage = func() {
		fmt.Println(`Usage: condensed check [options]

Ping the document store with the configured credentials and print the
resolved configuration with secrets redacted.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	store, err := newDocStore(cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := check(ctx, cfg, store, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
		return 1
	}
	return 0
}
