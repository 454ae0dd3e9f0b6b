// Package discovery scans the local host for things worth monitoring and
// turns them into configuration targets.
package discovery

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/config"
)

const scanTimeout = 10 * time.Second

// Findings is what one host scan turned up.
type Findings struct {
	// Containers are the names of running docker containers.
	Containers []string

	// Units are the names of running systemd service units.
	Units []string
}

// Empty reports whether the scan found nothing.
func (f Findings) Empty() bool {
	return len(f.Containers) == 0 && len(f.Units) == 0
}

// Document is the YAML document written by the discover command. It holds
// only a targets section, so it loads directly as a configuration file and
// also pastes cleanly into an existing one.
type Document struct {
	Targets config.TargetsConfig `yaml:"targets"`
}

// Scan asks docker and systemd what is running right now.
//
// Both sources are best-effort: a host without docker or without systemd
// yields a warning and an empty list for that source, never an error. What
// the scan does find is sorted and de-duplicated.
func Scan(ctx context.Context, logger *zap.Logger) Findings {
	if logger == nil {
		logger = zap.NewNop()
	}

	var f Findings

	out, err := runCommand(ctx, "docker", "ps", "--format", "{{.Names}}")
	if err != nil {
		logger.Warn("cannot list docker containers", zap.Error(err))
	} else {
		f.Containers = parseContainers(out)
	}

	out, err = runCommand(ctx, "systemctl",
		"list-units", "--type=service", "--state=running", "--no-legend", "--plain", "--no-pager")
	if err != nil {
		logger.Warn("cannot list systemd units", zap.Error(err))
	} else {
		f.Units = parseUnits(out)
	}

	return f
}

// parseContainers reads "docker ps --format {{.Names}}" output: one
// container name per line.
func parseContainers(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return dedupe(names)
}

// parseUnits reads "systemctl list-units --plain --no-legend" output: the
// unit name is the first column of each line.
func parseUnits(output string) []string {
	var units []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		unit := fields[0]
		if !strings.HasSuffix(unit, ".service") {
			continue
		}
		units = append(units, unit)
	}
	return dedupe(units)
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Merge folds the findings into an existing target set and reports how many
// entries it added. Targets already present, by container/unit or by name,
// are left untouched so hand-tuned entries survive regeneration.
func Merge(targets *config.TargetsConfig, f Findings) int {
	names := make(map[string]struct{})
	claim := func(name string) {
		if name != "" {
			names[name] = struct{}{}
		}
	}
	for _, t := range targets.Containers {
		claim(t.Name)
		claim(t.Container)
	}
	for _, t := range targets.Processes {
		claim(t.Name)
	}
	for _, t := range targets.Services {
		claim(t.Name)
		claim(t.Unit)
	}
	for _, t := range targets.HTTP {
		claim(t.Name)
	}
	for _, t := range targets.TLS {
		claim(t.Name)
	}

	added := 0
	for _, name := range f.Containers {
		if _, ok := names[name]; ok {
			continue
		}
		names[name] = struct{}{}
		targets.Containers = append(targets.Containers, config.ContainerTarget{Container: name})
		added++
	}
	for _, unit := range f.Units {
		if _, ok := names[unit]; ok {
			continue
		}
		names[unit] = struct{}{}
		targets.Services = append(targets.Services, config.ServiceTarget{Unit: unit})
		added++
	}

	return added
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	buf := &bytes.Buffer{}
	cmd.Stdout = buf
	cmd.Stderr = buf

	if err := cmd.Run(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
