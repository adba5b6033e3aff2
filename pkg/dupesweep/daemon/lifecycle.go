package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrDaemonAlreadyRunning is returned when trying to start a daemon that's already running.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// WritePIDFile writes the current process ID to a file.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads a PID from a file.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(path string) error {
	return os.Remove(path)
}

// IsRunning checks if the process named by the PID file is alive.
func IsRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// RecoverStale removes the PID file, socket and hash cache lock left behind
// by a daemon that died without cleaning up. It returns
// ErrDaemonAlreadyRunning if the recorded process is still alive.
func RecoverStale(pidPath, socketPath, cacheDir string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return nil //nolint:nilerr // no PID file means nothing to recover
	}
	if processAlive(pid) {
		return ErrDaemonAlreadyRunning
	}

	logger.Warn("cleaning up stale daemon files", "stale_pid", pid)
	_ = os.Remove(pidPath)
	_ = os.Remove(socketPath)
	if cacheDir != "" {
		_ = os.Remove(filepath.Join(cacheDir, "LOCK"))
	}
	return nil
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}
