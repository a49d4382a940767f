//go:build !windows

// Package process provides platform-specific subprocess group control so a
// timed-out toolchain invocation cannot leave orphaned children behind.
package process

import (
	"os/exec"
	"syscall"
)

// Setpgid places the command in its own process group so the whole tree can
// be killed together. Must be called before the command starts.
func Setpgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// KillProcessGroup kills a process and all its children by sending SIGKILL
// to the process group (negative PID).
func KillProcessGroup(pid int) {
	// Best-effort cleanup; exec's own kill is the fallback.
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
