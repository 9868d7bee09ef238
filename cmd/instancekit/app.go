package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/calladine/instancekit/pkg/config"
	"github.com/calladine/instancekit/pkg/toolkit"
)

// Application dispatches subcommands onto one Toolkit.
type Application struct {
	cfg    *config.Config
	logger zerolog.Logger
	kit    *toolkit.Toolkit
}

// NewApplication wires a Toolkit from the loaded configuration.
func NewApplication(cfg *config.Config, logger zerolog.Logger) *Application {
	kit := toolkit.New(cfg.Root)
	kit.ScriptDirname = cfg.ScriptDirname
	kit.InstanceDirname = cfg.InstanceDirname
	kit.ArchetypeDirname = cfg.ArchetypeDirname
	kit.CodebaseDirname = cfg.CodebaseDirname
	kit.ExtraPaths = cfg.ExtraPaths
	kit.BufferSize = cfg.BufferSize
	kit.Encoding = cfg.Encoding
	kit.Logger = &logger

	return &Application{cfg: cfg, logger: logger, kit: kit}
}

// Run executes one subcommand and returns the process exit code.
func (a *Application) Run(command string, args []string) (int, error) {
	switch command {
	case "create":
		return a.create(args)
	case "run":
		return a.run(args)
	case "clear":
		return a.clear(args)
	case "config":
		return a.configCmd(args)
	default:
		return 2, fmt.Errorf("unknown command %q", command)
	}
}

func (a *Application) create(args []string) (int, error) {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	overwrite := fs.Bool("overwrite", false, "Overwrite an existing instance")
	force := fs.Bool("force", false, "Skip safety checks")
	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return 2, fmt.Errorf("usage: create <archetype> [instance]")
	}
	instance := ""
	if fs.NArg() == 2 {
		instance = fs.Arg(1)
	}
	a.logger.Debug().Str("archetype", fs.Arg(0)).Str("instance", instance).Msg("creating instance")
	if err := a.kit.CreateInstance(fs.Arg(0), instance, *overwrite, *force); err != nil {
		return 1, err
	}
	return 0, nil
}

func (a *Application) run(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "Verbose command output")
	dryRun := fs.Bool("dry-run", false, "Print what would run without running it")
	interactive := fs.BoolP("interactive", "i", false, "Attach the command to this terminal")
	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if fs.NArg() < 1 {
		return 2, fmt.Errorf("usage: run <instance> [command...]")
	}
	instance, commands := fs.Arg(0), fs.Args()[1:]

	if *interactive {
		code, err := a.kit.RunInstanceInteractive(instance, commands, *verbose, *dryRun, os.Stdin, os.Stdout)
		if err != nil {
			return 1, err
		}
		return code, nil
	}
	if err := a.kit.RunInstance(instance, commands, *verbose, *dryRun, nil); err != nil {
		return 1, err
	}
	return 0, nil
}

func (a *Application) clear(args []string) (int, error) {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if fs.NArg() != 1 {
		return 2, fmt.Errorf("usage: clear <instance>")
	}
	if err := a.kit.ClearInstance(fs.Arg(0)); err != nil {
		return 1, err
	}
	return 0, nil
}

func (a *Application) configCmd(args []string) (int, error) {
	if len(args) == 0 {
		return 2, fmt.Errorf("usage: config get|set ...")
	}
	switch args[0] {
	case "get":
		return a.configGet(args[1:])
	case "set":
		return a.configSet(args[1:])
	default:
		return 2, fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func (a *Application) configGet(args []string) (int, error) {
	fs := flag.NewFlagSet("config get", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if fs.NArg() < 2 {
		return 2, fmt.Errorf("usage: config get <instance> <config> [key...]")
	}
	values, err := a.kit.GetConfig(fs.Arg(0), fs.Arg(1), fs.Args()[2:]...)
	if err != nil {
		return 1, err
	}
	for _, v := range values {
		fmt.Println(v)
	}
	return 0, nil
}

func (a *Application) configSet(args []string) (int, error) {
	fs := flag.NewFlagSet("config set", flag.ContinueOnError)
	typeName := fs.String("type", "", "Value type: str, int, float or null (inferred when omitted)")
	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if fs.NArg() != 4 {
		return 2, fmt.Errorf("usage: config set <instance> <config> <key> <value>")
	}
	value, err := parseValue(fs.Arg(3), *typeName)
	if err != nil {
		return 2, err
	}
	if err := a.kit.SetConfig(fs.Arg(0), fs.Arg(1), fs.Arg(2), value); err != nil {
		return 1, err
	}
	return 0, nil
}

// parseValue maps a raw command-line value to its typed form. With an
// explicit type name the value must parse as that type; otherwise the
// narrowest of null, int, float and string wins.
func parseValue(raw, typeName string) (toolkit.Value, error) {
	switch typeName {
	case "null":
		return toolkit.Null(), nil
	case "int":
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return toolkit.Value{}, fmt.Errorf("invalid int %q: %w", raw, err)
		}
		return toolkit.Int(i), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return toolkit.Value{}, fmt.Errorf("invalid float %q: %w", raw, err)
		}
		return toolkit.Float(f), nil
	case "str":
		return toolkit.String(raw), nil
	case "":
		if raw == "null" {
			return toolkit.Null(), nil
		}
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return toolkit.Int(i), nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return toolkit.Float(f), nil
		}
		return toolkit.String(raw), nil
	default:
		return toolkit.Value{}, fmt.Errorf("unknown value type %q", typeName)
	}
}
