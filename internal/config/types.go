package config

import (
	"fmt"
	"sort"
	"time"
)

// Duration wraps time.Duration so manifests can use strings such as "1.5s".
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// File mirrors the procwatch.yaml document structure.
type File struct {
	Version   string                  `yaml:"version"`
	Defaults  Defaults                `yaml:"defaults"`
	Processes map[string]*ProcessSpec `yaml:"processes"`
}

// Defaults apply to every process that does not override them.
type Defaults struct {
	Timeout      Duration `yaml:"timeout"`
	PollInterval Duration `yaml:"pollInterval"`
	Workdir      string   `yaml:"workdir,omitempty"`
}

// ProcessSpec describes one supervised command.
type ProcessSpec struct {
	Command     []string          `yaml:"command"`
	Timeout     Duration          `yaml:"timeout"`
	Workdir     string            `yaml:"workdir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	EnvFromFile string            `yaml:"envFromFile,omitempty"`

	// Probe, when set, heartbeats the process every time the check passes.
	Probe *ProbeSpec `yaml:"probe,omitempty"`

	// ResolvedWorkdir is the absolute working directory after resolving
	// Workdir against the defaults and the manifest location.
	ResolvedWorkdir string `yaml:"-"`
}

// ProbeSpec is a liveness check run alongside a process. Every configured
// check must pass for the probe to succeed.
type ProbeSpec struct {
	Interval Duration   `yaml:"interval"`
	Timeout  Duration   `yaml:"timeout"`
	HTTP     *HTTPProbe `yaml:"http,omitempty"`
	TCP      *TCPProbe  `yaml:"tcp,omitempty"`
	Command  []string   `yaml:"command,omitempty"`
}

// HTTPProbe passes when a GET returns an expected status, or any 2xx/3xx
// status when ExpectStatus is empty.
type HTTPProbe struct {
	URL          string `yaml:"url"`
	ExpectStatus []int  `yaml:"expectStatus,omitempty"`
}

// TCPProbe passes when a connection to Address can be opened.
type TCPProbe struct {
	Address string `yaml:"address"`
}

const (
	// DefaultProbeInterval applies to probes without an interval.
	DefaultProbeInterval = time.Second
	// DefaultProbeTimeout bounds a single probe attempt.
	DefaultProbeTimeout = time.Second
)

const (
	// DefaultTimeout applies when neither a process nor the defaults set one.
	DefaultTimeout = 30 * time.Second
	// DefaultPollInterval matches the watchdog's built-in interval.
	DefaultPollInterval = 100 * time.Millisecond
)

// ApplyDefaults fills unset per-process values from the defaults section.
func (f *File) ApplyDefaults() error {
	if f.Version == "" {
		f.Version = "1"
	}
	if !f.Defaults.Timeout.IsSet() {
		f.Defaults.Timeout = Duration{Duration: DefaultTimeout}
	}
	if !f.Defaults.PollInterval.IsSet() {
		f.Defaults.PollInterval = Duration{Duration: DefaultPollInterval}
	}
	for _, spec := range f.Processes {
		if spec == nil {
			continue
		}
		if !spec.Timeout.IsSet() {
			spec.Timeout = f.Defaults.Timeout
		}
		spec.Probe.applyDefaults()
	}
	return nil
}

// Names returns the process names in a stable order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Processes))
	for name := range f.Processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the spec.
func (p *ProcessSpec) Clone() *ProcessSpec {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Command = append([]string(nil), p.Command...)
	if p.Env != nil {
		dup.Env = make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			dup.Env[k] = v
		}
	}
	dup.Probe = p.Probe.Clone()
	return &dup
}

func (p *ProbeSpec) applyDefaults() {
	if p == nil {
		return
	}
	if !p.Interval.IsSet() {
		p.Interval = Duration{Duration: DefaultProbeInterval}
	}
	if !p.Timeout.IsSet() {
		p.Timeout = Duration{Duration: DefaultProbeTimeout}
	}
}

// Clone returns a deep copy of the probe.
func (p *ProbeSpec) Clone() *ProbeSpec {
	if p == nil {
		return nil
	}
	dup := *p
	if p.HTTP != nil {
		http := *p.HTTP
		http.ExpectStatus = append([]int(nil), p.HTTP.ExpectStatus...)
		dup.HTTP = &http
	}
	if p.TCP != nil {
		tcp := *p.TCP
		dup.TCP = &tcp
	}
	dup.Command = append([]string(nil), p.Command...)
	return &dup
}
