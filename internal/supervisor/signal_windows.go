//go:build windows

package supervisor

import (
	"os"
	"syscall"

	"github.com/castline/castline/internal/errors"
)

// Windows has no SIGSTOP/SIGCONT equivalent usable through os.Process, so
// pause and resume report not supported instead of pretending.

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func pauseProcess(_ *os.Process) error {
	return errors.New(errors.ErrCodeProcNotSupported, "pause is not supported on windows")
}

func resumeProcess(_ *os.Process) error {
	return errors.New(errors.ErrCodeProcNotSupported, "resume is not supported on windows")
}

func terminateProcess(p *os.Process) error {
	if err := p.Kill(); err != nil {
		return errors.Wrap(errors.ErrCodeProcSignalFailed, "terminate process", err)
	}
	return nil
}
