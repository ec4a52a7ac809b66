package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procwatch/internal/runtime/process"
)

func newUpCmd(ctx *context) *cobra.Command {
	var noSummary bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start every process in the watch file and supervise them",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			log := ctx.log()

			stopMetrics, err := ctx.serveMetrics()
			if err != nil {
				return err
			}
			defer stopMetrics()

			sup := newSupervisor(log, doc.Defaults.PollInterval.Duration)
			defer sup.close()

			stdout := &syncWriter{w: cmd.OutOrStdout()}
			stderr := &syncWriter{w: cmd.ErrOrStderr()}

			names := doc.Names()
			width := 0
			for _, name := range names {
				width = max(width, len(name))
			}

			results := make([]result, len(names))
			var wg sync.WaitGroup
			for i, name := range names {
				spec := doc.Processes[name]
				watch, err := newWatchSpec(spec.Timeout.Duration, spec.Probe)
				if err != nil {
					log.Error("Invalid probe", "process", name, "err", err)
					results[i] = result{Name: name, Outcome: outcomeFailed, ExitCode: -1, Err: err}
					continue
				}
				p, err := process.Start(cmd.Context(), process.Spec{
					Name:    name,
					Command: spec.Command,
					Env:     spec.Env,
					Workdir: spec.ResolvedWorkdir,
				})
				if err != nil {
					log.Error("Failed to start process", "process", name, "err", err)
					results[i] = result{Name: name, Outcome: outcomeFailed, ExitCode: -1, Err: err}
					continue
				}
				log.Debug("Process started", "process", p, "timeout", spec.Timeout.Duration)

				wg.Add(1)
				go func(i int, p *process.Process, prefix string) {
					defer wg.Done()
					results[i] = sup.supervise(cmd.Context(), p, watch, streams{
						stdout: stdout,
						stderr: stderr,
						prefix: prefix,
					})
				}(i, p, fmt.Sprintf("%-*s", width, name))
			}
			wg.Wait()

			if !noSummary {
				if err := renderSummary(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			}

			failed := 0
			for _, res := range results {
				if !res.ok() {
					failed++
				}
			}
			if failed > 0 {
				return &exitError{
					code: 1,
					err:  fmt.Errorf("%d of %d processes did not exit cleanly", failed, len(results)),
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSummary, "no-summary", false, "Do not print the summary table")
	return cmd
}
