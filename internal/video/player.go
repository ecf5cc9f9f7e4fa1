package video

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ErrPlayerMissing is returned by CheckPlayer when the player executable is
// not on PATH.
var ErrPlayerMissing = errors.New("video player not installed")

// CheckPlayer resolves the player executable on PATH.
func CheckPlayer(player string) (string, error) {
	path, err := exec.LookPath(player)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPlayerMissing, player, err)
	}
	return path, nil
}

// InstallHint returns the command that installs player on goos.
func InstallHint(goos, player string) string {
	switch goos {
	case "darwin":
		return "brew install " + player
	case "linux":
		return "sudo apt install " + player
	default:
		return "install " + player + " and make sure it is on PATH"
	}
}

// IsHeadless reports whether no display server is reachable, judged by the
// DISPLAY and WAYLAND_DISPLAY variables.
func IsHeadless(lookupEnv func(string) (string, bool)) bool {
	for _, key := range []string{"DISPLAY", "WAYLAND_DISPLAY"} {
		if v, ok := lookupEnv(key); ok && v != "" {
			return false
		}
	}
	return true
}

// Headless applies IsHeadless to the process environment. Desktop systems
// without X11 or Wayland always have a display.
func Headless() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return false
	}
	return IsHeadless(os.LookupEnv)
}
