package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procwatch/internal/config"
	"github.com/Paintersrp/procwatch/internal/runtime/process"
	"github.com/Paintersrp/procwatch/internal/watchdog"
)

func newRunCmd(ctx *context) *cobra.Command {
	var (
		timeout      time.Duration
		pollInterval time.Duration
		name         string
		workdir      string
		env          map[string]string
		probe        *probeFlags
	)

	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command and kill it when its output goes quiet",
		Long: `Run starts a command under the watchdog. Every chunk the command writes
to stdout extends its deadline by --timeout; a command that stays silent for
longer is killed and procwatch exits with status 137. Otherwise procwatch exits
with the command's own status.

With --probe-http or --probe-tcp, every passing probe also extends the
deadline, so quiet servers stay alive while they answer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				return errors.New("--timeout must be positive")
			}
			watch, err := newWatchSpec(timeout, probe.spec())
			if err != nil {
				return err
			}
			log := ctx.log()

			stopMetrics, err := ctx.serveMetrics()
			if err != nil {
				return err
			}
			defer stopMetrics()

			p, err := process.Start(cmd.Context(), process.Spec{
				Name:    name,
				Command: args,
				Env:     env,
				Workdir: workdir,
			})
			if err != nil {
				return err
			}

			sup := newSupervisor(log, pollInterval)
			defer sup.close()

			res := sup.supervise(cmd.Context(), p, watch, streams{
				stdout: cmd.OutOrStdout(),
				stderr: cmd.ErrOrStderr(),
				stdin:  cmd.InOrStdin(),
			})
			if res.ok() {
				return nil
			}
			exit := &exitError{code: res.exitStatus()}
			if res.Outcome == outcomeKilled {
				exit.err = fmt.Errorf("%s killed: no output for %s", res.Name, timeout)
			}
			return exit
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultTimeout, "Kill the command after this long without output")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", watchdog.DefaultPollInterval, "How often deadlines are checked")
	cmd.Flags().StringVar(&name, "name", "", "Name used in logs and metrics (defaults to the executable)")
	cmd.Flags().StringVar(&workdir, "workdir", "", "Working directory for the command")
	cmd.Flags().StringToStringVarP(&env, "env", "e", nil, "Extra environment variables (KEY=VALUE)")
	probe = addProbeFlags(cmd)
	return cmd
}
