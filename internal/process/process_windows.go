//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// Setpgid is a no-op on Windows; KillProcessGroup uses taskkill's tree kill
// instead of process groups.
func Setpgid(cmd *exec.Cmd) {}

// KillProcessGroup kills a process and all its children using taskkill.
// /F = force kill, /T = terminate child processes (tree kill).
func KillProcessGroup(pid int) {
	// Best-effort cleanup; exec's own kill is the fallback.
	_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
