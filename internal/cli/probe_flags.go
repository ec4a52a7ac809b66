package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procwatch/internal/config"
)

type probeFlags struct {
	http     string
	tcp      string
	interval time.Duration
	timeout  time.Duration
}

func addProbeFlags(cmd *cobra.Command) *probeFlags {
	f := &probeFlags{}
	cmd.Flags().StringVar(&f.http, "probe-http", "", "Heartbeat whenever a GET on this URL succeeds")
	cmd.Flags().StringVar(&f.tcp, "probe-tcp", "", "Heartbeat whenever this address accepts a connection")
	cmd.Flags().DurationVar(&f.interval, "probe-interval", config.DefaultProbeInterval, "Delay between probe attempts")
	cmd.Flags().DurationVar(&f.timeout, "probe-timeout", config.DefaultProbeTimeout, "Bound on a single probe attempt")
	return f
}

// spec returns nil when no probe was requested.
func (f *probeFlags) spec() *config.ProbeSpec {
	if f.http == "" && f.tcp == "" {
		return nil
	}
	spec := &config.ProbeSpec{
		Interval: config.Duration{Duration: f.interval},
		Timeout:  config.Duration{Duration: f.timeout},
	}
	if f.http != "" {
		spec.HTTP = &config.HTTPProbe{URL: f.http}
	}
	if f.tcp != "" {
		spec.TCP = &config.TCPProbe{Address: f.tcp}
	}
	return spec
}
