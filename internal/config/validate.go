package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the document for values the watchdog cannot work with.
func (f *File) Validate() error {
	if f.Version != "1" {
		return fmt.Errorf("version: unsupported version %q", f.Version)
	}
	if f.Defaults.Timeout.Duration <= 0 {
		return errors.New("defaults.timeout: must be positive")
	}
	if f.Defaults.PollInterval.Duration < 0 {
		return errors.New("defaults.pollInterval: must not be negative")
	}
	if len(f.Processes) == 0 {
		return errors.New("processes: at least one process is required")
	}
	for _, name := range f.Names() {
		spec := f.Processes[name]
		if strings.TrimSpace(name) == "" {
			return errors.New("processes: process names must not be empty")
		}
		if spec == nil {
			return fmt.Errorf("%s: definition is empty", processField(name, ""))
		}
		if len(spec.Command) == 0 || strings.TrimSpace(spec.Command[0]) == "" {
			return fmt.Errorf("%s: command is required", processField(name, "command"))
		}
		if spec.Timeout.Duration <= 0 {
			return fmt.Errorf("%s: must be positive", processField(name, "timeout"))
		}
		if err := spec.Probe.validate(); err != nil {
			return fmt.Errorf("%s: %w", processField(name, "probe"), err)
		}
	}
	return nil
}

func (p *ProbeSpec) validate() error {
	if p == nil {
		return nil
	}
	if p.HTTP == nil && p.TCP == nil && len(p.Command) == 0 {
		return errors.New("one of http, tcp or command is required")
	}
	if p.Interval.Duration <= 0 {
		return errors.New("interval must be positive")
	}
	if p.Timeout.Duration <= 0 {
		return errors.New("timeout must be positive")
	}
	if p.HTTP != nil && strings.TrimSpace(p.HTTP.URL) == "" {
		return errors.New("http.url is required")
	}
	if p.TCP != nil && strings.TrimSpace(p.TCP.Address) == "" {
		return errors.New("tcp.address is required")
	}
	if len(p.Command) > 0 && strings.TrimSpace(p.Command[0]) == "" {
		return errors.New("command must name an executable")
	}
	return nil
}

func processField(name, field string) string {
	if field == "" {
		return fmt.Sprintf("processes.%s", name)
	}
	return fmt.Sprintf("processes.%s.%s", name, field)
}
