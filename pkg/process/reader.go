package process

import (
	"os"

	"golang.org/x/sys/unix"
)

// DefaultBufferSize is the chunk size for each underlying read when none
// is configured.
const DefaultBufferSize = 512

// pollTimeoutMs is the readiness poll granularity. A Read call never
// blocks longer than this per poll iteration.
const pollTimeoutMs = 1

// StreamReader drains a pipe read end without blocking the caller when no
// data is currently available. It polls the fd for readability with a
// short timeout and reads bounded chunks while the poll reports ready,
// returning whatever has accumulated the moment it does not.
//
// An empty result is a valid outcome, not an error; callers tolerate
// partial results and call again later for more. Bytes are consumed from
// the OS pipe buffer, so repeated calls never return the same bytes
// twice.
type StreamReader struct {
	f          *os.File
	bufferSize int
}

// NewStreamReader wraps f. The reader does not own f beyond reading from
// it; closing f remains the creator's job.
func NewStreamReader(f *os.File, bufferSize int) *StreamReader {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &StreamReader{f: f, bufferSize: bufferSize}
}

// Read drains up to max bytes from the underlying fd, or everything
// currently available if max <= 0. It is a best-effort drain, not a
// blocking read-exactly-N.
func (r *StreamReader) Read(max int) ([]byte, error) {
	var out []byte
	fd := int(r.f.Fd())
	buf := make([]byte, r.bufferSize)
	for max <= 0 || len(out) < max {
		ready, err := pollIn(fd, pollTimeoutMs)
		if err != nil {
			return out, err
		}
		if !ready {
			break
		}
		limit := r.bufferSize
		if max > 0 && max-len(out) < limit {
			limit = max - len(out)
		}
		n, err := unix.Read(fd, buf[:limit])
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return out, err
		}
		if n == 0 {
			// EOF. The fd stays readable forever once the write end
			// closes, so breaking here is what stops the loop.
			break
		}
	}
	return out, nil
}

// pollIn reports whether fd is readable within timeoutMs milliseconds.
func pollIn(fd int, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}
