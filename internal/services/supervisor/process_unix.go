//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach starts the worker in its own session so signals aimed at the
// server's process group do not reach it
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
