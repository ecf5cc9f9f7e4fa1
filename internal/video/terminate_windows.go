//go:build windows

package video

import "os"

// terminate ends the process. Windows has no graceful terminate signal for
// console-less processes, so this calls TerminateProcess.
func terminate(p *os.Process) error {
	return p.Kill()
}
