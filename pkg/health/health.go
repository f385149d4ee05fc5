// Package health provides liveness and readiness checks for a producer and worker
// pairing: the mailbox must stay mapped and linked, the worker process must be alive.
package health

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shm-mailbox/internal/shm"
)

// CheckTimeout bounds every check served over HTTP.
const CheckTimeout = time.Second

// Checker reports whether a mailbox is still usable. *mailbox.Mailbox implements it.
type Checker interface {
	Check() error
}

// MailboxCheck fails once the mailbox is closed, corrupt or unlinked.
func MailboxCheck(mb Checker) healthcheck.Check {
	return func() error {
		return mb.Check()
	}
}

// ProcessCheck fails once the process with pid is gone.
func ProcessCheck(pid int) healthcheck.Check {
	return func() error {
		if pid <= 0 {
			return fmt.Errorf("invalid pid %d", pid)
		}
		p, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		if err := p.Signal(syscall.Signal(0)); err != nil {
			return fmt.Errorf("process %d: %w", pid, err)
		}
		return nil
	}
}

// RegionCheck fails while no region named name exists in dir.
func RegionCheck(dir, name string) healthcheck.Check {
	return func() error {
		path, err := shm.RegionPath(dir, name)
		if err != nil {
			return err
		}
		if !shm.RegionExists(dir, name) {
			return fmt.Errorf("region %s does not exist", path)
		}
		return nil
	}
}

// NewHandler serves /live from the mailbox and /ready from the worker process.
func NewHandler(mb Checker, workerPid int) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("mailbox", healthcheck.Timeout(MailboxCheck(mb), CheckTimeout))
	h.AddReadinessCheck("worker", healthcheck.Timeout(ProcessCheck(workerPid), CheckTimeout))
	return h
}

// Evaluate runs every check once and returns the failures keyed by check name. A
// passing check maps to nil.
func Evaluate(checks map[string]healthcheck.Check) map[string]error {
	results := make(map[string]error, len(checks))
	for name, check := range checks {
		results[name] = check()
	}
	return results
}

// Write prints results sorted by name and returns an error when any check failed.
func Write(w io.Writer, results map[string]error) error {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)
	var failed []error
	for _, name := range names {
		status := "OK"
		if err := results[name]; err != nil {
			status = "FAIL " + err.Error()
			failed = append(failed, fmt.Errorf("%s: %w", name, err))
		}
		if _, err := fmt.Fprintf(w, "%-10s %s\n", name, status); err != nil {
			return err
		}
	}
	return errors.Join(failed...)
}
