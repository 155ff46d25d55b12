//go:build !windows

package gdb

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// killProcessGroup kills gdb and everything it started, including the debugged
// program. The negative pid addresses the whole process group.
func killProcessGroup(pid int, cmd *exec.Cmd) error {
	if pid > 0 {
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			return err
		}
	} else if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
			return err
		}
	}
	return nil
}

// setProcAttr starts gdb in a new session so it leads its own process group
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
