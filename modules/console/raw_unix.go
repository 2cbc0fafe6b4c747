//go:build linux

package console

import (
	"os"

	"golang.org/x/sys/unix"
)

// withRawEcho disables canonical mode and local echo on f for the duration
// of fn, if f is a terminal, restoring the prior termios afterward. This
// keeps readline's line-editing behavior (backspace, etc.) delegated to the
// foreign side's call site rather than double-echoed by both the terminal
// driver and whatever prints the prompt, the same termios dance
// `xyproto-vibe67` and `IntuitionAmiga-IntuitionEngine` do around raw
// terminal I/O.
func withRawEcho(f *os.File, fn func()) {
	fd := int(f.Fd())
	original, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		fn()
		return
	}

	raw := *original
	raw.Lflag &^= unix.ECHO | unix.ICANON
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		fn()
		return
	}
	defer unix.IoctlSetTermios(fd, unix.TCSETS, original)

	fn()
}
