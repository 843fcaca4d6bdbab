package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"castreel/internal/api"
	"castreel/internal/preflight"
	"castreel/internal/queue"
	"castreel/internal/queueaccess"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var checkServices bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and stage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil && !errors.Is(err, api.ErrDaemonUnavailable) {
				return err
			}
			if jsonOutput {
				if status == nil {
					status = &api.DaemonStatus{}
				}
				return printJSON(cmd.OutOrStdout(), status)
			}

			p := newPrinter(cmd.OutOrStdout())
			if status != nil {
				printDaemonStatus(p, status)
			} else {
				p.section("Daemon", true)
				p.line("castreel", levelError, "Not running")
				if err := printOfflineQueue(cmd.Context(), ctx, p); err != nil {
					return err
				}
			}

			if checkServices {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				p.section("Services", false)
				for _, line := range serviceLines(p, preflight.CheckServices(cmd.Context(), cfg)) {
					p.print(line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw status JSON")
	cmd.Flags().BoolVar(&checkServices, "check-services", false, "Probe the configured service endpoints")
	return cmd
}

func printDaemonStatus(p *printer, status *api.DaemonStatus) {
	p.section("Daemon", true)
	running := fmt.Sprintf("Running (pid %d)", status.PID)
	if status.StartedAt != "" {
		running += ", since " + status.StartedAt
	}
	p.line("castreel", levelOK, running)
	if status.Workflow.Running {
		p.line("Workflow", levelOK, "Dispatching")
	} else {
		p.line("Workflow", levelWarn, "Stopped")
	}
	if status.Workflow.LastError != "" {
		p.line("Last error", levelWarn, status.Workflow.LastError)
	}
	if status.Database.IntegrityCheck {
		p.line("Database", levelOK, fmt.Sprintf("%s (%d jobs)", status.Database.Path, status.Database.TotalJobs))
	} else {
		p.line("Database", levelError, status.Database.Path+": "+status.Database.Error)
	}

	p.section("Stages", false)
	p.print(renderStageTable(p, status.Workflow.Stages))

	p.section("Queue", false)
	p.print(renderCountsTable(p, status.Workflow.JobStats))
}

func printOfflineQueue(ctx context.Context, cmdCtx *commandContext, p *printer) error {
	return cmdCtx.withQueue(ctx, func(access queueaccess.Access) error {
		metrics, err := access.Metrics(ctx)
		if err != nil {
			return err
		}
		p.section("Queue", false)
		p.print(renderCountsTable(p, metrics.Counts))
		return nil
	})
}

func renderStageTable(p *printer, stages []api.StageStatus) string {
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		health := "ready"
		if !s.Health.Ready {
			health = "not ready"
		}
		if s.Health.Detail != "" {
			health += ": " + s.Health.Detail
		}
		rows = append(rows, []string{s.Label, strconv.Itoa(s.InFlight), strconv.Itoa(s.Limit), health})
	}
	return p.table([]column{
		{title: "Stage"},
		{title: "In Flight", numeric: true},
		{title: "Limit", numeric: true},
		{title: "Health"},
	}, rows)
}

// renderCountsTable lists every state in pipeline order, including empty ones.
func renderCountsTable(p *printer, counts map[string]int) string {
	rows := make([][]string, 0, len(queue.AllStates))
	for _, state := range queue.AllStates {
		rows = append(rows, []string{string(state), strconv.Itoa(counts[string(state)])})
	}
	return p.table([]column{{title: "State", state: true}, {title: "Jobs", numeric: true}}, rows)
}

func serviceLines(p *printer, results []preflight.Result) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		l := levelOK
		if !r.Passed {
			l = levelError
		}
		lines = append(lines, p.statusLine(r.Name, l, r.Detail))
	}
	return lines
}
