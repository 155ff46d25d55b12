//go:build windows

package gdb

import (
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup kills gdb. Windows has no Unix-style process groups, so only
// the gdb process itself is killed.
func killProcessGroup(pid int, cmd *exec.Cmd) error {
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
			return err
		}
	}
	return nil
}

// setProcAttr creates a new process group for gdb
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
