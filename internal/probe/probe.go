// Package probe runs liveness checks next to a supervised process and turns
// every passing check into a heartbeat.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Paintersrp/procwatch/internal/config"
)

// Prober performs a single liveness check.
type Prober interface {
	Probe(ctx context.Context) error
}

// New builds a Prober for spec. When spec configures more than one check,
// all of them must pass.
func New(spec *config.ProbeSpec) (Prober, error) {
	if spec == nil {
		return nil, errors.New("probe: missing configuration")
	}

	var checks []namedProber
	if spec.HTTP != nil {
		checks = append(checks, namedProber{"http", newHTTPProber(spec.HTTP)})
	}
	if spec.TCP != nil {
		checks = append(checks, namedProber{"tcp", newTCPProber(spec.TCP)})
	}
	if len(spec.Command) > 0 {
		prober, err := newCommandProber(spec.Command)
		if err != nil {
			return nil, err
		}
		checks = append(checks, namedProber{"cmd", prober})
	}

	switch len(checks) {
	case 0:
		return nil, errors.New("probe: missing configuration")
	case 1:
		return checks[0].prober, nil
	default:
		return allProber(checks), nil
	}
}

type namedProber struct {
	name   string
	prober Prober
}

type allProber []namedProber

func (a allProber) Probe(ctx context.Context) error {
	for _, check := range a {
		if err := check.prober.Probe(ctx); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}
	}
	return nil
}

// Heartbeat runs p every interval until ctx is done and calls beat after each
// passing attempt. Each attempt is bounded by timeout. State changes between
// passing and failing are logged.
func Heartbeat(ctx context.Context, p Prober, interval, timeout time.Duration, beat func(), log *slog.Logger) {
	if interval <= 0 {
		interval = config.DefaultProbeInterval
	}
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Probe(attemptCtx)
		cancel()

		if ctx.Err() != nil {
			return
		}
		switch {
		case err == nil:
			if failing {
				log.Info("Probe passing again")
				failing = false
			}
			beat()
		case !failing:
			log.Warn("Probe failing", "err", err)
			failing = true
		default:
			log.Debug("Probe still failing", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
