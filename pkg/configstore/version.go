package configstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
)

// State is the config.version state grammar of spec §3.5.
type State string

const (
	StateIdle          State = "idle"
	StateBusy          State = "busy"
	StateUpdateCluster State = "update_cluster"
	StateUpdateConfigs State = "update_configs"
)

const versionFileName = "config.version"

// ReadVersion parses config.version in dir (spec §4.C read_version). A
// missing file is not an error: it reports generation 0, idle, pid 0.
func ReadVersion(dir string) (version int, state State, pid int, err error) {
	path := filepath.Join(dir, versionFileName)
	f, openErr := os.Open(path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return 0, StateIdle, 0, nil
		}
		return 0, "", 0, icerr.Wrap(icerr.FailedToOpenFile, openErr, "opening %s", path)
	}
	defer f.Close()

	lines, readErr := readLines(f, 3)
	if readErr != nil {
		return 0, "", 0, icerr.Wrap(icerr.ProtocolError, readErr, "reading %s", path)
	}

	version, err = parseLine(lines, 0, "version")
	if err != nil {
		return 0, "", 0, err
	}
	stateStr, err := parseLineString(lines, 1, "state")
	if err != nil {
		return 0, "", 0, err
	}
	state = State(stateStr)
	switch state {
	case StateIdle, StateBusy, StateUpdateCluster, StateUpdateConfigs:
	default:
		return 0, "", 0, icerr.New(icerr.ProtocolError, "unknown state %q in %s", state, path).WithLine(2)
	}
	pid, err = parseLine(lines, 2, "pid")
	if err != nil {
		return 0, "", 0, err
	}
	return version, state, pid, nil
}

func readLines(f *os.File, n int) ([]string, error) {
	sc := bufio.NewScanner(f)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) != n {
		return nil, fmt.Errorf("expected %d lines, found %d", n, len(lines))
	}
	return lines, nil
}

func parseLineString(lines []string, idx int, key string) (string, error) {
	prefix := key + ": "
	if idx >= len(lines) || !strings.HasPrefix(lines[idx], prefix) {
		return "", icerr.New(icerr.ProtocolError, "line %d: expected %q prefix", idx+1, prefix).WithLine(idx + 1)
	}
	return strings.TrimPrefix(lines[idx], prefix), nil
}

func parseLine(lines []string, idx int, key string) (int, error) {
	s, err := parseLineString(lines, idx, key)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(s)
	if convErr != nil {
		return 0, icerr.Wrap(icerr.ProtocolError, convErr, "line %d: %q is not numeric", idx+1, key).WithLine(idx + 1)
	}
	return n, nil
}

// WriteVersion writes config.version and re-reads it to detect a
// concurrent writer (spec §4.C write_version). The first-ever write
// creates the file; later writes truncate and rewrite it.
func WriteVersion(dir string, version int, state State, pid int) error {
	path := filepath.Join(dir, versionFileName)
	body := fmt.Sprintf("version: %d\nstate: %s\npid: %d\n", version, state, pid)

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return icerr.Wrap(icerr.FailedToOpenFile, err, "writing %s", path)
	}

	gotVersion, gotState, gotPid, err := ReadVersion(dir)
	if err != nil {
		return err
	}
	if gotVersion != version || gotState != state || gotPid != pid {
		return icerr.New(icerr.InconsistentData, "concurrent writer overtook %s", path)
	}
	return nil
}

// processAlive reports whether pid names a live process, the collaborator
// behind spec §4.C's "by process-name check". Signal 0 performs no action
// but still validates the pid exists and is reachable (standard Unix
// liveness probe).
func processAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, icerr.Wrap(icerr.CheckProcessScript, err, "finding pid %d", pid)
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err == os.ErrProcessDone {
		return false, nil
	}
	if errno, ok := err.(syscall.Errno); ok && errno == syscall.ESRCH {
		return false, nil
	}
	if errno, ok := err.(syscall.Errno); ok && errno == syscall.EPERM {
		return true, nil // exists, owned by someone else
	}
	return false, icerr.Wrap(icerr.CheckProcessScript, err, "signalling pid %d", pid)
}

// LockAndLoad implements spec §4.C lock_and_load: claims ownership of dir
// for processName (processName is not used; liveness is pid-based) and
// returns the generation now owned by this process.
func LockAndLoad(dir string, processName string) (int, error) {
	version, state, pid, err := ReadVersion(dir)
	if err != nil {
		return 0, err
	}

	switch state {
	case StateIdle:
		if err := WriteVersion(dir, version, StateBusy, os.Getpid()); err != nil {
			return 0, err
		}
		return version, nil
	case StateBusy, StateUpdateCluster, StateUpdateConfigs:
		alive, err := processAlive(pid)
		if err != nil {
			return 0, err
		}
		if alive {
			return 0, icerr.New(icerr.CouldNotLockConfiguration, "generation %d owned by live pid %d", version, pid)
		}
		if err := WriteVersion(dir, version, StateBusy, os.Getpid()); err != nil {
			return 0, err
		}
		return version, nil
	default:
		return 0, icerr.New(icerr.ProtocolError, "unrecognised state %q", state)
	}
}

// ReleaseLock rewrites config.version with state=idle, pid=0, the shutdown
// behaviour of spec §4.E.
func ReleaseLock(dir string, version int) error {
	return WriteVersion(dir, version, StateIdle, 0)
}
