package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/procwatch/internal/config"
	"github.com/Paintersrp/procwatch/internal/runtime/attach"
	"github.com/Paintersrp/procwatch/internal/watchdog"
)

func newAttachCmd(ctx *context) *cobra.Command {
	var (
		pid          int
		timeout      time.Duration
		pollInterval time.Duration
		probe        *probeFlags
	)

	cmd := &cobra.Command{
		Use:   "attach --pid PID",
		Short: "Kill an already running process unless it exits before the timeout",
		Long: `Attach adopts a process procwatch did not start. It is killed once --timeout
has passed unless it exits first, or unless a probe passes and extends its
deadline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				return errors.New("--timeout must be positive")
			}
			watch, err := newWatchSpec(timeout, probe.spec())
			if err != nil {
				return err
			}
			p, err := attach.Attach(pid)
			if err != nil {
				return err
			}
			log := ctx.log()

			stopMetrics, err := ctx.serveMetrics()
			if err != nil {
				return err
			}
			defer stopMetrics()

			sup := newSupervisor(log, pollInterval)
			defer sup.close()

			started := time.Now()
			wp := sup.dog.Watch(p, watch.timeout)
			stopProbe := sup.startProbe(cmd.Context(), wp, watch, p.Name())
			err = waitForExit(cmd.Context(), p)
			stopProbe()
			sup.dog.Unwatch(wp)
			if err != nil {
				return err
			}

			elapsed := units.HumanDuration(time.Since(started))
			if sup.wasKilled(wp) {
				return &exitError{
					code: killedExitCode,
					err:  fmt.Errorf("%s killed after %s", p, elapsed),
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s exited after %s\n", p, elapsed)
			return nil
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "Process id to watch")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultTimeout, "Kill the process once this much time has passed")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", watchdog.DefaultPollInterval, "How often deadlines are checked")
	probe = addProbeFlags(cmd)
	_ = cmd.MarkFlagRequired("pid")
	return cmd
}

// waitForExit polls p until it is gone or ctx ends.
func waitForExit(ctx stdcontext.Context, p *attach.Process) error {
	ticker := time.NewTicker(attach.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := p.ExitCode(); !errors.Is(err, watchdog.ErrNotExited) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
