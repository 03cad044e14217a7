package flyway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/schemafleet/schemafleet/internal/platform/logger"
)

// Verb selects the tool operation
type Verb string

const (
	VerbMigrate Verb = "migrate"
	VerbInfo    Verb = "info"
)

// RunResult carries the outcome of a tool invocation
type RunResult struct {
	Applied  int
	Output   string
	Duration time.Duration
}

var appliedRe = regexp.MustCompile(`Successfully applied (\d+) migrations?`)

// Runner invokes the Flyway CLI as a subprocess
type Runner struct {
	binary  string
	timeout time.Duration
	log     logger.Logger
}

// NewRunner creates a runner for the given binary with a per-invocation timeout
func NewRunner(binary string, timeout time.Duration, log logger.Logger) *Runner {
	if binary == "" {
		binary = "flyway"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{binary: binary, timeout: timeout, log: log}
}

// MigrationsExist reports whether the location holds at least one
// versioned migration file.
func (r *Runner) MigrationsExist(location string) bool {
	entries, err := os.ReadDir(location)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "V") && strings.HasSuffix(name, ".sql") {
			return true
		}
	}
	return false
}

// Run renders the config to a temporary file and invokes the tool.
// A timeout is reported as a failure, same as a non-zero exit.
func (r *Runner) Run(ctx context.Context, cfg Config, verb Verb) (*RunResult, error) {
	confFile, err := r.writeConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to write tool config: %w", err)
	}
	defer os.Remove(confFile)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(ctx, r.binary, "-configFiles="+confFile, string(verb))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("invoking migration tool",
		"binary", r.binary, "verb", string(verb), "schema", cfg.Schema)

	err = cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s timed out after %s", r.binary, verb, r.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("%s %s failed: %v: %s", r.binary, verb, err, msg)
	}

	out := stdout.String()
	return &RunResult{
		Applied:  ParseAppliedCount(out),
		Output:   out,
		Duration: elapsed,
	}, nil
}

// ParseAppliedCount extracts the applied-migration count from tool
// output, defaulting to 0 when the output is unparseable.
func ParseAppliedCount(output string) int {
	m := appliedRe.FindStringSubmatch(output)
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func (r *Runner) writeConfig(cfg Config) (string, error) {
	f, err := os.CreateTemp("", "flyway-*.conf")
	if err != nil {
		return "", err
	}

	if _, err := f.WriteString(cfg.Render()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// LocationFor maps a schema name to its migration-file directory under
// the migrations root. The tenant "public" schema reads from the tenant
// directory.
func LocationFor(migrationsDir, schema string) string {
	dir := schema
	if schema == "public" {
		dir = "tenant"
	}
	return filepath.Join(migrationsDir, dir)
}
