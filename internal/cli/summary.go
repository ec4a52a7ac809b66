package cli

import (
	"io"
	"strconv"

	units "github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
)

func renderSummary(w io.Writer, results []result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "PID", "Outcome", "Exit", "Runtime")
	for _, res := range results {
		pid := "-"
		if res.Pid > 0 {
			pid = strconv.Itoa(res.Pid)
		}
		exit := "-"
		if res.ExitCode >= 0 {
			exit = strconv.Itoa(res.ExitCode)
		}
		runtime := "-"
		if res.Runtime > 0 {
			runtime = units.HumanDuration(res.Runtime)
		}
		if err := table.Append(res.Name, pid, string(res.Outcome), exit, runtime); err != nil {
			return err
		}
	}
	return table.Render()
}
