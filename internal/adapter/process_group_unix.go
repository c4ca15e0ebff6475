//go:build !windows

package adapter

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group and makes cancellation kill
// the whole group, not only the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}

		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
