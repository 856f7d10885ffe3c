//go:build !windows

package supervisor

import (
	"os"
	"syscall"

	"github.com/castline/castline/internal/errors"
)

// Children run in their own process group so pause, resume, and terminate
// reach the whole tree, not just the immediate child.

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func pauseProcess(p *os.Process) error {
	return signalGroup(p.Pid, syscall.SIGSTOP)
}

func resumeProcess(p *os.Process) error {
	return signalGroup(p.Pid, syscall.SIGCONT)
}

func terminateProcess(p *os.Process) error {
	return signalGroup(p.Pid, syscall.SIGTERM)
}

func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		return errors.Wrap(errors.ErrCodeProcSignalFailed,
			"signal process group "+sig.String(), err)
	}
	return nil
}
