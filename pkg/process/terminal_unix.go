//go:build linux || darwin

package process

import "golang.org/x/sys/unix"

// setRawMode puts the terminal into raw mode and returns a restore
// function. Fails (harmlessly) when fd is not a terminal.
func setRawMode(fd int) (func(), error) {
	old, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, err
	}

	// Equivalent to cfmakeraw(3).
	raw := *old
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8

	if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, &raw); err != nil {
		return nil, err
	}

	return func() {
		// Best effort restore.
		_ = unix.IoctlSetTermios(fd, ioctlWriteTermios, old)
	}, nil
}
