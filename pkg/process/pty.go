package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
)

// Interactive runs a configured command on a pseudo-terminal wired to
// the caller's terminal, for commands that want a real TTY rather than
// plain pipes. Unlike Process it merges stdout and stderr, as any PTY
// does.
type Interactive struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	pty      *os.File
	stopCh   chan struct{}
	wg       sync.WaitGroup
	restore  func()
	exitCode int
}

// NewInteractive creates an interactive runner for cfg.
func NewInteractive(cfg Config) *Interactive {
	if cfg.Dir == "" {
		cfg.Dir = "/"
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Interactive{
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		exitCode: -1,
	}
}

// Run starts the command on a fresh PTY, copies stdin/stdout between the
// caller's terminal and the PTY until the child exits, and returns the
// exit code. If stdin is a terminal it is put into raw mode for the
// duration of the run.
func (it *Interactive) Run(stdin *os.File, stdout io.Writer) (int, error) {
	it.mu.Lock()
	if it.cmd != nil {
		it.mu.Unlock()
		return -1, ErrAlreadyStarted
	}
	if len(it.cfg.Args) == 0 {
		it.mu.Unlock()
		return -1, fmt.Errorf("no command configured")
	}

	env := it.cfg.BuildEnviron()
	program := it.cfg.Args[0]
	if !strings.ContainsRune(program, os.PathSeparator) {
		resolved, err := lookPathEnv(program, env)
		if err != nil {
			it.mu.Unlock()
			return -1, err
		}
		program = resolved
	}

	cmd := exec.Command(program)
	cmd.Args = it.cfg.Args
	cmd.Dir = it.cfg.Dir
	cmd.Env = env

	ptmx, err := pty.Start(cmd)
	if err != nil {
		it.mu.Unlock()
		return -1, fmt.Errorf("failed to start PTY: %w", err)
	}
	it.cmd = cmd
	it.pty = ptmx

	// Size the PTY like the caller's terminal, when there is one.
	if err := it.copyTerminalSize(stdin); err != nil {
		it.logger.Debug().Err(err).Msg("failed to copy terminal size")
	}

	if restore, err := setRawMode(int(stdin.Fd())); err == nil {
		it.restore = restore
	}
	it.mu.Unlock()

	it.wg.Add(1)
	go it.monitorTerminalSize(stdin)

	// Stdin copy; unblocked by the PTY close below once the child exits.
	go func() {
		_, _ = io.Copy(ptmx, stdin)
	}()

	outDone := make(chan struct{})
	go func() {
		defer close(outDone)
		_, _ = io.Copy(stdout, ptmx)
	}()

	err = cmd.Wait()
	if _, exited := err.(*exec.ExitError); exited {
		err = nil
	}

	it.mu.Lock()
	if cmd.ProcessState != nil {
		it.exitCode = cmd.ProcessState.ExitCode()
	}
	it.mu.Unlock()

	close(it.stopCh)
	it.wg.Wait()

	_ = ptmx.Close()
	<-outDone

	it.mu.Lock()
	if it.restore != nil {
		it.restore()
		it.restore = nil
	}
	it.mu.Unlock()

	return it.ExitCode(), err
}

// ExitCode returns the child's exit code after Run returns, -1 before.
func (it *Interactive) ExitCode() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.exitCode
}

// Stop restores the caller's terminal and signals the child to
// terminate, escalating to SIGKILL if SIGTERM cannot be delivered.
func (it *Interactive) Stop() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.restore != nil {
		it.restore()
		it.restore = nil
	}
	if it.cmd != nil && it.cmd.Process != nil {
		if err := it.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			if err != os.ErrProcessDone {
				return it.cmd.Process.Kill()
			}
		}
	}
	return nil
}

func (it *Interactive) copyTerminalSize(from *os.File) error {
	size, err := pty.GetsizeFull(from)
	if err != nil {
		return err
	}
	return pty.Setsize(it.pty, size)
}

// monitorTerminalSize forwards SIGWINCH resizes to the PTY.
func (it *Interactive) monitorTerminalSize(from *os.File) {
	defer it.wg.Done()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			it.mu.Lock()
			if it.pty != nil {
				if err := it.copyTerminalSize(from); err != nil {
					it.logger.Debug().Err(err).Msg("failed to resize PTY")
				}
			}
			it.mu.Unlock()
		case <-it.stopCh:
			return
		}
	}
}
