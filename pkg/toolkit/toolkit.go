// Package toolkit is the domain layer over pkg/process: it lays out the
// workspace directories, translates high-level options into argument
// vectors for the external instance-management commands, and interprets
// their exit codes and captured stderr.
package toolkit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/calladine/instancekit/pkg/process"
)

// ScriptError reports a non-zero exit from one of the external commands,
// carrying whatever the command wrote to stderr.
type ScriptError struct {
	Command  string
	ExitCode int
	Stderr   []byte
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s failed; return code: %d, error message: %s",
		e.Command, e.ExitCode, strings.TrimRight(string(e.Stderr), "\n"))
}

// Toolkit binds the external instance-management commands to one
// workspace root. The scripts directory is prepended to the PATH of
// every spawned command so the workspace's own tooling wins.
type Toolkit struct {
	// Root is the workspace directory; spawned commands run inside it.
	Root string

	// Directory names under Root. All have defaults.
	ScriptDirname    string
	InstanceDirname  string
	ArchetypeDirname string
	CodebaseDirname  string

	// ExtraPaths are additional executable search paths, after the
	// scripts directory.
	ExtraPaths []string

	// BufferSize and Encoding are passed through to every Process.
	BufferSize int
	Encoding   string

	Logger *zerolog.Logger
}

// New returns a Toolkit rooted at root with default directory names.
func New(root string) *Toolkit {
	return &Toolkit{
		Root:             root,
		ScriptDirname:    "scripts",
		InstanceDirname:  "instances",
		ArchetypeDirname: "archetypes",
		CodebaseDirname:  "codebase",
	}
}

func (t *Toolkit) ScriptDir() string    { return filepath.Join(t.Root, t.ScriptDirname) }
func (t *Toolkit) InstanceDir() string  { return filepath.Join(t.Root, t.InstanceDirname) }
func (t *Toolkit) ArchetypeDir() string { return filepath.Join(t.Root, t.ArchetypeDirname) }
func (t *Toolkit) CodebaseDir() string  { return filepath.Join(t.Root, t.CodebaseDirname) }

// processConfig builds the process configuration for one command
// invocation: the command name, then positional arguments, then the
// formatted options.
func (t *Toolkit) processConfig(command string, positional []string, opts ...Option) process.Config {
	args := append([]string{command}, positional...)
	for _, o := range opts {
		args = append(args, o.format()...)
	}
	return process.Config{
		Args:       args,
		Dir:        t.Root,
		InheritEnv: true,
		ExtraPaths: append([]string{t.ScriptDir()}, t.ExtraPaths...),
		BufferSize: t.BufferSize,
		Encoding:   t.Encoding,
		Logger:     t.Logger,
	}
}

// NewProcess builds an unstarted Process for one command invocation.
func (t *Toolkit) NewProcess(command string, positional []string, opts ...Option) *process.Process {
	return process.New(t.processConfig(command, positional, opts...))
}

// runScript runs p to completion and maps a non-zero exit code to a
// ScriptError carrying the drained stderr.
func (t *Toolkit) runScript(name string, p *process.Process) error {
	code, err := p.RunSync()
	if err != nil {
		return err
	}
	return t.checkExit(name, p, code)
}

func (t *Toolkit) checkExit(name string, p *process.Process, code int) error {
	if code == 0 {
		return nil
	}
	stderr, err := p.ReadError(0)
	if err != nil {
		stderr = nil
	}
	return &ScriptError{Command: name, ExitCode: code, Stderr: stderr}
}

// CreateInstance materializes an instance from an archetype. An empty
// instance name lets the command pick one.
func (t *Toolkit) CreateInstance(archetype, instance string, overwrite, force bool) error {
	positional := []string{archetype}
	if instance != "" {
		positional = append(positional, instance)
	}
	p := t.NewProcess("instance-create", positional,
		Option{"overwrite", Bool(overwrite)},
		Option{"force", Bool(force)},
		Option{"instances-dir", String(t.InstanceDir())},
	)
	return t.runScript("instance-create", p)
}

// RunInstance executes commands inside an instance. When fn is non-nil
// it is invoked with the live process between spawn and wait, for
// callers that drive stdin/stdout interactively.
func (t *Toolkit) RunInstance(instance string, commands []string, verbose, dryRun bool, fn func(*process.Process) error) error {
	p := t.NewProcess("instance-run", append([]string{instance}, commands...),
		Option{"verbose", Bool(verbose)},
		Option{"dry-run", Bool(dryRun)},
		Option{"instances-dir", String(t.InstanceDir())},
		Option{"codebase", String(t.CodebaseDir())},
	)
	if err := p.Open(); err != nil {
		return err
	}
	if fn != nil {
		if err := fn(p); err != nil {
			return err
		}
	}
	code, err := p.Wait(0)
	if err != nil {
		return err
	}
	return t.checkExit("instance-run", p, code)
}

// RunInstanceInteractive executes commands inside an instance on a PTY
// attached to stdin/stdout, returning the command's exit code.
func (t *Toolkit) RunInstanceInteractive(instance string, commands []string, verbose, dryRun bool, stdin *os.File, stdout io.Writer) (int, error) {
	cfg := t.processConfig("instance-run", append([]string{instance}, commands...),
		Option{"verbose", Bool(verbose)},
		Option{"dry-run", Bool(dryRun)},
		Option{"instances-dir", String(t.InstanceDir())},
		Option{"codebase", String(t.CodebaseDir())},
	)
	return process.NewInteractive(cfg).Run(stdin, stdout)
}

// ClearInstance removes an instance without prompting.
func (t *Toolkit) ClearInstance(instance string) error {
	p := t.NewProcess("instance-clear", []string{instance},
		Option{"yes", Bool(true)},
		Option{"instances-dir", String(t.InstanceDir())},
	)
	return t.runScript("instance-clear", p)
}

// SetConfig writes one typed key into an instance's named config. Only
// null, int, float and string values are accepted.
func (t *Toolkit) SetConfig(instance, config, key string, value Value) error {
	tn, err := value.typeName()
	if err != nil {
		return err
	}
	p := t.NewProcess("config-set", []string{instance, config, key, value.literal()},
		Option{"type", String(tn)},
		Option{"write-back", Bool(true)},
		Option{"instances-dir", String(t.InstanceDir())},
	)
	return t.runScript("config-set", p)
}

// GetConfig reads keys from an instance's named config, one decoded
// output line per value.
func (t *Toolkit) GetConfig(instance, config string, keys ...string) ([]string, error) {
	p := t.NewProcess("config-get", append([]string{instance, config}, keys...),
		Option{"instances-dir", String(t.InstanceDir())},
	)
	if err := t.runScript("config-get", p); err != nil {
		return nil, err
	}
	out, err := p.ReadString(0)
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
