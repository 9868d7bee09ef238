// Package process owns the lifecycle of one external child process:
// environment construction, spawn, liveness, pipe I/O, wait and
// termination. A Process is single-shot; once it has run, a fresh
// instance is required to run again.
package process

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Process.
type State int

const (
	StateUnstarted State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config describes one child process. It is immutable after being handed
// to New.
type Config struct {
	// Args is the program name/path followed by its arguments.
	Args []string

	// Dir is the working directory the child is spawned in. Defaults to
	// the filesystem root.
	Dir string

	// InheritEnv seeds the child's environment from the parent's.
	InheritEnv bool

	// ExtraEnv is merged over the inherited environment; its keys win.
	ExtraEnv map[string]string

	// ExtraPaths are directories prepended, in order, to the child's
	// PATH with highest precedence.
	ExtraPaths []string

	// BufferSize is the chunk size for stderr drains. Defaults to
	// DefaultBufferSize.
	BufferSize int

	// Encoding names the text encoding for the string read/write
	// variants. Defaults to "utf-8".
	Encoding string

	// Logger receives suppressed teardown and wait errors. Defaults to a
	// no-op logger.
	Logger *zerolog.Logger
}

// BuildEnviron deterministically constructs the child environment from
// the configuration. It has no side effects and may be called without
// spawning.
func (c Config) BuildEnviron() []string {
	var env []string
	if c.InheritEnv {
		env = append(env, os.Environ()...)
	}
	if len(c.ExtraPaths) > 0 {
		sep := string(os.PathListSeparator)
		path := strings.Join(c.ExtraPaths, sep)
		if i, old := lookupEnviron(env, "PATH"); i >= 0 {
			if old != "" {
				path = path + sep + old
			}
			env[i] = "PATH=" + path
		} else {
			env = append(env, "PATH="+path)
		}
	}
	if len(c.ExtraEnv) > 0 {
		keys := make([]string, 0, len(c.ExtraEnv))
		for k := range c.ExtraEnv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if i, _ := lookupEnviron(env, k); i >= 0 {
				env[i] = k + "=" + c.ExtraEnv[k]
			} else {
				env = append(env, k+"="+c.ExtraEnv[k])
			}
		}
	}
	return env
}

// lookupEnviron finds key in a KEY=value list, returning its index and
// current value, or -1.
func lookupEnviron(env []string, key string) (int, string) {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return i, kv[len(prefix):]
		}
	}
	return -1, ""
}

// lookPathEnv resolves a bare program name against the PATH of the
// constructed environment.
func lookPathEnv(name string, env []string) (string, error) {
	_, path := lookupEnviron(env, "PATH")
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found in PATH", name)
}

// Process supervises one child process. All methods are safe for use
// from a single caller goroutine; the internal mutex only guards against
// the background reaper.
type Process struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	opened   bool
	cmd      *exec.Cmd
	stdin    *os.File
	stdout   *bufio.Reader
	stdoutF  *os.File
	stderrF  *os.File
	stderr   *StreamReader
	done     chan struct{}
	exitCode int
	waitErr  error
}

// New creates an unstarted Process from cfg, applying defaults for the
// zero-valued fields.
func New(cfg Config) *Process {
	if cfg.Dir == "" {
		cfg.Dir = "/"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "utf-8"
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Process{cfg: cfg, logger: logger, exitCode: -1}
}

// Config returns the configuration the Process was built with.
func (p *Process) Config() Config {
	return p.cfg
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Open spawns the child with the configured arguments, working directory
// and environment, wiring pipes for stdin, stdout and stderr. It does
// not block waiting for the child to produce output.
//
// Open is single-shot: a second call fails with ErrAlreadyStarted even
// if the first spawn failed.
func (p *Process) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opened {
		return ErrAlreadyStarted
	}
	p.opened = true

	if len(p.cfg.Args) == 0 {
		return fmt.Errorf("no command configured")
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	env := p.cfg.BuildEnviron()

	// exec.Command would resolve a bare name against the parent's PATH;
	// the configured extra paths must take precedence, so resolve
	// against the constructed environment instead.
	program := p.cfg.Args[0]
	if !strings.ContainsRune(program, os.PathSeparator) {
		resolved, err := lookPathEnv(program, env)
		if err != nil {
			stdinR.Close()
			stdinW.Close()
			stdoutR.Close()
			stdoutW.Close()
			stderrR.Close()
			stderrW.Close()
			return fmt.Errorf("failed to start process: %w", err)
		}
		program = resolved
	}

	// Raw pipe fds are handed to the child directly so that, unlike the
	// os/exec pipe helpers, stdout stays readable after Wait returns.
	cmd := exec.Command(program)
	cmd.Args = p.cfg.Args
	cmd.Dir = p.cfg.Dir
	cmd.Env = env
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return fmt.Errorf("failed to start process: %w", err)
	}

	// The child holds its own copies of these ends.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	p.cmd = cmd
	p.stdin = stdinW
	p.stdoutF = stdoutR
	p.stdout = bufio.NewReader(stdoutR)
	p.stderrF = stderrR
	p.stderr = NewStreamReader(stderrR, p.cfg.BufferSize)
	p.done = make(chan struct{})
	p.state = StateRunning

	go p.reap()

	return nil
}

// reap collects the child's exit status as soon as it exits, so that
// liveness checks reflect ground truth and no zombie is left behind.
func (p *Process) reap() {
	err := p.cmd.Wait()

	p.mu.Lock()
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	if _, exited := err.(*exec.ExitError); err != nil && !exited {
		// A non-zero exit code is not a wait failure; anything else is.
		p.waitErr = err
	}
	p.mu.Unlock()

	close(p.done)
}

// RunSync is Open followed by Wait. A wait-level failure is logged and
// downgraded to the best-known exit code, since synchronous callers
// treat the exit code as the sole source of truth.
func (p *Process) RunSync() (int, error) {
	if err := p.Open(); err != nil {
		return -1, err
	}
	code, err := p.Wait(0)
	if err != nil {
		p.logger.Warn().Err(err).Msg("wait failed; returning last known exit code")
		p.mu.Lock()
		code = p.exitCode
		p.mu.Unlock()
	}
	return code, nil
}

// Wait blocks until the child exits, or until timeout elapses if one is
// given (timeout <= 0 means no timeout), then transitions to Terminated
// and returns the exit code. It is idempotent after termination.
func (p *Process) Wait(timeout time.Duration) (int, error) {
	p.mu.Lock()
	opened, done := p.opened, p.done
	p.mu.Unlock()
	if !opened || done == nil {
		return -1, ErrNotStarted
	}

	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			return -1, ErrWaitTimeout
		}
	} else {
		<-done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateTerminated
	return p.exitCode, p.waitErr
}

// IsAlive polls the child's liveness without blocking. It does not
// transition state; Wait owns the Terminated transition.
func (p *Process) IsAlive() (bool, error) {
	p.mu.Lock()
	opened, done := p.opened, p.done
	p.mu.Unlock()
	if !opened {
		return false, ErrNotStarted
	}
	if done == nil {
		// Spawn failed; there was never a live child.
		return false, nil
	}
	select {
	case <-done:
		return false, nil
	default:
		return true, nil
	}
}

// checkAlive returns ErrNotRunning (or ErrNotStarted) unless the child
// is currently alive.
func (p *Process) checkAlive() error {
	alive, err := p.IsAlive()
	if err != nil {
		return err
	}
	if !alive {
		return ErrNotRunning
	}
	return nil
}

// Close signals the child to terminate: SIGTERM by default, SIGKILL if
// kill is true. It does not wait for the exit; callers wanting the exit
// code follow with Wait.
func (p *Process) Close(kill bool) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	if kill {
		return p.cmd.Process.Kill()
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Write pushes data to the child's stdin. Pipe writes are unbuffered, so
// every write reaches the child eagerly.
func (p *Process) Write(data []byte) (int, error) {
	if err := p.checkAlive(); err != nil {
		return 0, err
	}
	return p.stdin.Write(data)
}

// CloseStdin closes the child's stdin, signaling end of input.
func (p *Process) CloseStdin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened || p.stdin == nil {
		return ErrNotStarted
	}
	return p.stdin.Close()
}

// Read reads from the child's stdout. With max <= 0 it reads to EOF;
// otherwise it reads up to max bytes, short only at EOF. Read may block
// until the child produces output; use ReadError for the non-blocking
// stderr drain.
func (p *Process) Read(max int) ([]byte, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	if max <= 0 {
		return io.ReadAll(p.stdout)
	}
	buf := make([]byte, max)
	n, err := io.ReadFull(p.stdout, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:n], err
}

// ReadLine reads one line from stdout, including the trailing newline.
// With limit > 0 at most limit bytes are returned even if no newline was
// seen yet. At EOF it returns what remains without error.
func (p *Process) ReadLine(limit int) ([]byte, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	var line []byte
	for limit <= 0 || len(line) < limit {
		b, err := p.stdout.ReadByte()
		if err == io.EOF {
			return line, nil
		}
		if err != nil {
			return line, err
		}
		line = append(line, b)
		if b == '\n' {
			break
		}
	}
	return line, nil
}

// ReadError drains whatever the child has currently written to stderr
// without blocking. An empty result means nothing is available yet, not
// that the stream has ended.
func (p *Process) ReadError(max int) ([]byte, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.stderr.Read(max)
}

// ReturnCode returns the cached exit code once the child has both
// started and exited.
func (p *Process) ReturnCode() (int, error) {
	alive, err := p.IsAlive()
	if err != nil {
		return -1, ErrNotTerminated
	}
	if alive {
		return -1, ErrNotTerminated
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return -1, ErrNotTerminated
	}
	return p.exitCode, nil
}

// Do opens the process, runs fn against it, and on every exit path
// attempts a graceful Close if the child is still alive. A close failure
// is logged but never returned, so teardown cannot mask fn's error.
func (p *Process) Do(fn func(*Process) error) error {
	if err := p.Open(); err != nil {
		return err
	}
	defer func() {
		alive, err := p.IsAlive()
		if err != nil || !alive {
			return
		}
		if err := p.Close(false); err != nil {
			p.logger.Error().Err(err).Msg("failed to gracefully close the process")
		}
	}()
	return fn(p)
}

func (p *Process) checkStarted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened || p.done == nil {
		return ErrNotStarted
	}
	return nil
}
