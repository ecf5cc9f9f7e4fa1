//go:build !windows

package video

import (
	"os"
	"syscall"
)

// terminate asks the process to exit with SIGTERM.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
