package socket

import (
	"strings"

	"github.com/mitchellh/go-ps"
)

var _ ProcessChecker = (*PSProcessChecker)(nil)

// ProcessChecker reports whether a process with a given name is running.
type ProcessChecker interface {
	IsRunning(name string) bool
}

// PSProcessChecker scans the system process table.
type PSProcessChecker struct{}

// IsRunning reports whether any running executable's name starts with name.
func (pc *PSProcessChecker) IsRunning(name string) bool {
	procs, err := ps.Processes()
	if err != nil {
		return false
	}

	for _, proc := range procs {
		if exe := proc.Executable(); len(exe) >= len(name) {
			if strings.EqualFold(exe[:len(name)], name) {
				return true
			}
		}
	}
	return false
}
