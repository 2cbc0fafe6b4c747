//go:build !linux

package console

import "os"

// withRawEcho is a no-op on platforms where this package has no termios
// binding; readline still works, just without suppressing terminal echo.
func withRawEcho(f *os.File, fn func()) {
	fn()
}
