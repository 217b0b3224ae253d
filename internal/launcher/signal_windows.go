//go:build windows

package launcher

import (
	"os"
	"os/exec"
)

func setProcGroup(_ *exec.Cmd) {}

// Windows has no process groups in the POSIX sense; both paths kill the
// process directly.
func terminateGroup(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}

func killGroup(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}
