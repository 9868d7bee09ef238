package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/calladine/instancekit/pkg/config"
	"github.com/calladine/instancekit/pkg/toolkit"
)

func main() {
	global := flag.NewFlagSet("instancekit", flag.ContinueOnError)
	global.SetOutput(os.Stderr)
	// Leave everything after the subcommand name untouched.
	global.SetInterspersed(false)

	var (
		configPath string
		root       string
		debug      bool
		help       bool
	)
	global.StringVar(&configPath, "config", "", "Path to config file")
	global.StringVar(&root, "root", "", "Workspace root directory")
	global.BoolVar(&debug, "debug", false, "Enable debug logging")
	global.BoolVarP(&help, "help", "h", false, "Show help message")

	if err := global.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			printUsage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(2)
	}

	if help || global.NArg() == 0 {
		printUsage()
		if help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if configPath != "" {
		if err := os.Setenv("INSTANCEKIT_CONFIG", configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error setting config path: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if root != "" {
		cfg.Root = root
	}
	if debug {
		cfg.Debug = true
	}
	if cfg.Root == "" {
		fmt.Fprintln(os.Stderr, "Error: no workspace root configured; pass --root or set INSTANCEKIT_ROOT")
		os.Exit(2)
	}

	logger := initLogger(cfg.Debug)
	app := NewApplication(cfg, logger)

	code, err := app.Run(global.Arg(0), global.Args()[1:])
	if err != nil {
		var se *toolkit.ScriptError
		if errors.As(err, &se) {
			logger.Error().Msg(se.Error())
			os.Exit(se.ExitCode)
		}
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
	os.Exit(code)
}

func initLogger(debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "instancekit").Logger()
	if !debug {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

func printUsage() {
	fmt.Println("instancekit - instance management toolkit")
	fmt.Println()
	fmt.Println("Usage: instancekit [OPTIONS] COMMAND [ARGS...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  create <archetype> [instance]             Create an instance from an archetype")
	fmt.Println("  run <instance> [command...]               Run commands inside an instance")
	fmt.Println("  clear <instance>                          Remove an instance")
	fmt.Println("  config get <instance> <config> [key...]   Read config values")
	fmt.Println("  config set <instance> <config> <key> <value>")
	fmt.Println("                                            Write a config value")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("      --config string   Path to config file")
	fmt.Println("      --root string     Workspace root directory")
	fmt.Println("      --debug           Enable debug logging")
	fmt.Println("  -h, --help            Show help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  INSTANCEKIT_ROOT         Workspace root directory")
	fmt.Println("  INSTANCEKIT_CONFIG       Path to config file")
	fmt.Println("  INSTANCEKIT_EXTRA_PATHS  Extra executable search paths (path-list separated)")
	fmt.Println("  INSTANCEKIT_BUFFER_SIZE  Stderr drain chunk size (default: 512)")
	fmt.Println("  INSTANCEKIT_ENCODING     Text encoding for command output (default: utf-8)")
	fmt.Println("  INSTANCEKIT_DEBUG        Enable debug logging (true/false)")
	fmt.Println()
	fmt.Println("Configuration file: ~/.config/instancekit/config.yaml")
}
