//go:build windows

package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// serverLock is an exclusively created lock file, removed on release.
type serverLock struct {
	f    *os.File
	path string
}

func acquireLock(path string) (*serverLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if os.IsExist(err) {
		// An open file cannot be removed here, so a successful remove means the holder is gone.
		if rmErr := os.Remove(path); rmErr == nil {
			f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		}
	}
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.New("repairboard is already running (lock held)")
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &serverLock{f: f, path: path}, nil
}

func (l *serverLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	_ = os.Remove(l.path)
}

func detach(*exec.Cmd) {}

// alive cannot probe a pid without extra APIs; a dead server is noticed when its address refuses connections.
func alive(pid int) bool { return pid > 0 }

func terminate(p *os.Process) error { return p.Kill() }
