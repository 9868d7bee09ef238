package process

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shProcess(t *testing.T, script string) *Process {
	t.Helper()
	return New(Config{
		Args:       []string{"/bin/sh", "-c", script},
		Dir:        t.TempDir(),
		InheritEnv: true,
	})
}

func TestBuildEnviron(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("KEEP", "inherited")

	cfg := Config{
		InheritEnv: true,
		ExtraPaths: []string{"/opt/scripts", "/opt/tools"},
		ExtraEnv:   map[string]string{"KEEP": "overridden", "ADDED": "new"},
	}

	env := cfg.BuildEnviron()

	_, path := lookupEnviron(env, "PATH")
	require.Equal(t, "/opt/scripts:/opt/tools:/usr/bin:/bin", path,
		"extra paths must come first, in order, followed by the inherited PATH")

	_, keep := lookupEnviron(env, "KEEP")
	assert.Equal(t, "overridden", keep, "extra env keys win over inherited ones")

	_, added := lookupEnviron(env, "ADDED")
	assert.Equal(t, "new", added)

	// PATH must appear exactly once.
	count := 0
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildEnvironDeterministic(t *testing.T) {
	cfg := Config{
		InheritEnv: true,
		ExtraPaths: []string{"/a", "/b"},
		ExtraEnv:   map[string]string{"X": "1", "Y": "2", "Z": "3"},
	}
	assert.Equal(t, cfg.BuildEnviron(), cfg.BuildEnviron())
}

func TestBuildEnvironNoInherit(t *testing.T) {
	t.Setenv("SHOULD_NOT_LEAK", "1")

	cfg := Config{
		ExtraPaths: []string{"/only"},
		ExtraEnv:   map[string]string{"A": "1"},
	}
	env := cfg.BuildEnviron()

	i, _ := lookupEnviron(env, "SHOULD_NOT_LEAK")
	assert.Equal(t, -1, i)
	_, path := lookupEnviron(env, "PATH")
	assert.Equal(t, "/only", path)
	_, a := lookupEnviron(env, "A")
	assert.Equal(t, "1", a)
}

func TestOpenTwice(t *testing.T) {
	p := shProcess(t, "exit 0")
	require.NoError(t, p.Open())
	assert.ErrorIs(t, p.Open(), ErrAlreadyStarted)

	_, err := p.Wait(0)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Open(), ErrAlreadyStarted)
}

func TestOpenTwiceAfterFailedSpawn(t *testing.T) {
	p := New(Config{Args: []string{"/nonexistent/definitely-not-a-binary"}})
	require.Error(t, p.Open())
	assert.ErrorIs(t, p.Open(), ErrAlreadyStarted)

	alive, err := p.IsAlive()
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestOperationsBeforeOpen(t *testing.T) {
	p := shProcess(t, "exit 0")

	_, err := p.IsAlive()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = p.Wait(0)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = p.Read(0)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = p.ReadLine(0)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = p.ReadError(0)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = p.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotStarted)
	err = p.Close(false)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = p.ReturnCode()
	assert.ErrorIs(t, err, ErrNotTerminated)
}

func TestLifecycle(t *testing.T) {
	p := shProcess(t, "sleep 0.2")
	require.NoError(t, p.Open())
	assert.Equal(t, StateRunning, p.State())

	alive, err := p.IsAlive()
	require.NoError(t, err)
	assert.True(t, alive)

	_, err = p.ReturnCode()
	assert.ErrorIs(t, err, ErrNotTerminated)

	code, err := p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, StateTerminated, p.State())

	alive, err = p.IsAlive()
	require.NoError(t, err)
	assert.False(t, alive)

	assert.ErrorIs(t, p.Close(false), ErrNotRunning)
	_, err = p.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotRunning)

	rc, err := p.ReturnCode()
	require.NoError(t, err)
	assert.Equal(t, 0, rc)
}

func TestWaitIdempotent(t *testing.T) {
	p := shProcess(t, "exit 7")
	require.NoError(t, p.Open())

	first, err := p.Wait(0)
	require.NoError(t, err)
	second, err := p.Wait(0)
	require.NoError(t, err)

	assert.Equal(t, 7, first)
	assert.Equal(t, first, second)
}

func TestRunSyncReadsStdoutAfterExit(t *testing.T) {
	p := shProcess(t, `printf 'hello\n'`)

	code, err := p.RunSync()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	out, err := p.Read(0)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestWriteReadLine(t *testing.T) {
	p := shProcess(t, "cat")
	require.NoError(t, p.Open())

	n, err := p.WriteString("ping\n")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	line, err := p.ReadLineString(0)
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)

	require.NoError(t, p.CloseStdin())
	code, err := p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestReadLineLimit(t *testing.T) {
	p := shProcess(t, `printf 'abcdef\n'`)
	_, err := p.RunSync()
	require.NoError(t, err)

	part, err := p.ReadLine(3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(part))

	rest, err := p.ReadLine(0)
	require.NoError(t, err)
	assert.Equal(t, "def\n", string(rest))
}

func TestReadErrorDoesNotBlock(t *testing.T) {
	// 2000 bytes of stderr in one burst, then a pause before exiting.
	p := shProcess(t, `head -c 2000 /dev/zero | tr '\0' 'x' >&2; sleep 0.2; exit 1`)
	require.NoError(t, p.Open())

	var got []byte
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < 2000 && time.Now().Before(deadline) {
		start := time.Now()
		chunk, err := p.ReadError(0)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second, "drain must not block")
		got = append(got, chunk...)
	}
	assert.Len(t, got, 2000)

	code, err := p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	// Already consumed; a further drain finds nothing.
	rest, err := p.ReadError(0)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestReadErrorBounded(t *testing.T) {
	p := shProcess(t, `printf 'abcdefgh' >&2; sleep 0.2`)
	require.NoError(t, p.Open())

	deadline := time.Now().Add(5 * time.Second)
	var first []byte
	for len(first) < 4 && time.Now().Before(deadline) {
		chunk, err := p.ReadError(4 - len(first))
		require.NoError(t, err)
		first = append(first, chunk...)
	}
	assert.Equal(t, "abcd", string(first))

	_, err := p.Wait(0)
	require.NoError(t, err)

	rest, err := p.ReadError(0)
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(rest))
}

func TestCloseEscalation(t *testing.T) {
	// Ignores SIGTERM and never exits on its own.
	p := shProcess(t, `trap '' TERM; while :; do sleep 0.05; done`)
	require.NoError(t, p.Open())

	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, p.Close(false))
	_, err := p.Wait(100 * time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)

	alive, err := p.IsAlive()
	require.NoError(t, err)
	require.True(t, alive)

	require.NoError(t, p.Close(true))
	code, err := p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, -1, code, "killed process reports no ordinary exit code")
}

func TestDoClosesOnExit(t *testing.T) {
	p := shProcess(t, "sleep 10")

	err := p.Do(func(p *Process) error {
		alive, err := p.IsAlive()
		require.NoError(t, err)
		assert.True(t, alive)
		return nil
	})
	require.NoError(t, err)

	// The deferred close sent SIGTERM; the child exits promptly.
	code, err := p.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, 0, code)
}

func TestDoPropagatesCallbackError(t *testing.T) {
	p := shProcess(t, "sleep 10")
	sentinel := errors.New("boom")

	err := p.Do(func(*Process) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	_, err = p.Wait(2 * time.Second)
	require.NoError(t, err)
}

func TestReadStringInvalidUTF8(t *testing.T) {
	p := shProcess(t, `printf '\377\376'`)
	_, err := p.RunSync()
	require.NoError(t, err)

	_, err = p.ReadString(0)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "utf-8", encErr.Encoding)
}

func TestLatin1Decoding(t *testing.T) {
	p := New(Config{
		Args:     []string{"/bin/sh", "-c", `printf '\344'`}, // ä in latin-1
		Encoding: "latin1",
	})
	_, err := p.RunSync()
	require.NoError(t, err)

	s, err := p.ReadString(0)
	require.NoError(t, err)
	assert.Equal(t, "ä", s)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unstarted", StateUnstarted.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "terminated", StateTerminated.String())
}
