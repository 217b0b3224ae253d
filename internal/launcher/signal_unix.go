//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group so signals reach
// any grandchildren the CLI spawns.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}

func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
