//go:build unix

package procexec

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func configureProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		// Negative pid targets the whole group.
		if err := unix.Kill(-c.Process.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			return c.Process.Kill()
		}
		return nil
	}
}
