package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// runDir is home/run: the lock, pid, address and log files of a running server.
type runDir string

func runDirOf(home string) runDir { return runDir(filepath.Join(home, "run")) }

func (d runDir) file(name string) string { return filepath.Join(string(d), name) }

func (d runDir) lockFile() string { return d.file("repairboard.lock") }
func (d runDir) pidFile() string  { return d.file("repairboard.pid") }
func (d runDir) addrFile() string { return d.file("repairboard.addr") }
func (d runDir) logFile() string  { return d.file("repairboard.log") }

func (d runDir) ensure() error { return os.MkdirAll(string(d), 0o755) }

// writeState records the pid and the bound listeners, one "name addr" pair per line.
func (d runDir) writeState(pid int, httpAddr, grpcAddr string) error {
	if err := os.WriteFile(d.pidFile(), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	addrs := "http " + httpAddr + "\n"
	if grpcAddr != "" {
		addrs += "grpc " + grpcAddr + "\n"
	}
	return os.WriteFile(d.addrFile(), []byte(addrs), 0o644)
}

func (d runDir) clearState() {
	_ = os.Remove(d.pidFile())
	_ = os.Remove(d.addrFile())
}

func (d runDir) readPID() (int, error) {
	b, err := os.ReadFile(d.pidFile())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s: invalid content %q", d.pidFile(), strings.TrimSpace(string(b)))
	}
	return pid, nil
}

// readAddrs returns the listeners written by writeState. Missing entries are empty.
func (d runDir) readAddrs() (httpAddr, grpcAddr string) {
	b, err := os.ReadFile(d.addrFile())
	if err != nil {
		return "", ""
	}
	for _, line := range strings.Split(string(b), "\n") {
		name, addr, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		switch name {
		case "http":
			httpAddr = addr
		case "grpc":
			grpcAddr = addr
		}
	}
	return httpAddr, grpcAddr
}
