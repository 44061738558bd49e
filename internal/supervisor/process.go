package supervisor

import (
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// procInfo is one row of the process table.
type procInfo struct {
	ppid   int
	zombie bool
}

// procTable is a snapshot of the process table keyed by pid.
type procTable map[int]procInfo

// snapshotProcesses lists every process with its parent and state using
// ps, which is available on both Linux and macOS. It returns nil when ps
// cannot be run.
func snapshotProcesses() procTable {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ps", "-axo", "pid=,ppid=,stat=").Output()
	if err != nil {
		return nil
	}
	table := make(procTable)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		zombie := len(fields) > 2 && strings.HasPrefix(fields[2], "Z")
		table[pid] = procInfo{ppid: ppid, zombie: zombie}
	}
	return table
}

// descendants returns every transitive child of root, sorted.
func (t procTable) descendants(root int) []int {
	children := make(map[int][]int)
	for pid, info := range t {
		children[info.ppid] = append(children[info.ppid], pid)
	}
	var out []int
	stack := []int{root}
	for len(stack) > 0 {
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range children[parent] {
			out = append(out, child)
			stack = append(stack, child)
		}
	}
	sort.Ints(out)
	return out
}

// alive reports whether pid is running. Zombies count as dead. Without a
// snapshot it falls back to kill(pid, 0).
func (t procTable) alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if t == nil {
		return IsProcessAlive(pid)
	}
	info, ok := t[pid]
	return ok && !info.zombie
}

// DescendantPIDs returns all descendant PIDs of pid.
func DescendantPIDs(pid int) []int {
	if pid <= 0 {
		return nil
	}
	return snapshotProcesses().descendants(pid)
}

// IsProcessAlive checks if a process with the given PID exists.
// EPERM means it exists under another user.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

func signalPID(pid int, sig syscall.Signal) {
	if pid > 0 {
		_ = syscall.Kill(pid, sig)
	}
}
