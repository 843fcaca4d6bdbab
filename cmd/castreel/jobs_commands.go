package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"castreel/internal/api"
	"castreel/internal/queue"
	"castreel/internal/queueaccess"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry pipeline jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var stateFlags []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(stateFlags)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				jobs, err := access.List(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), api.JobListResponse{Jobs: jobs})
				}
				p := newPrinter(cmd.OutOrStdout())
				if len(jobs) == 0 {
					p.print("No jobs found")
					return nil
				}
				p.print(renderJobTable(p, jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&stateFlags, "state", "s", nil, "Filter by state (repeatable or comma separated)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				job, err := access.Get(cmd.Context(), args[0])
				if err != nil {
					return jobError(args[0], err)
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), api.JobResponse{Job: *job})
				}
				printJobDetail(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output raw JSON")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue a failed job at the stage that failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				job, err := access.Retry(cmd.Context(), args[0])
				if err != nil {
					return jobError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s re-queued as %s\n", job.ID, job.State)
				return nil
			})
		},
	}
}

func parseStates(values []string) ([]queue.State, error) {
	var states []queue.State
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			state, ok := queue.ParseState(part)
			if !ok {
				return nil, fmt.Errorf("unknown state %q", part)
			}
			states = append(states, state)
		}
	}
	return states, nil
}

func jobError(id string, err error) error {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return fmt.Errorf("job %s not found", id)
	case errors.Is(err, queue.ErrStaleState):
		return fmt.Errorf("job %s is not failed; only failed jobs can be retried", id)
	case errors.Is(err, queue.ErrDuplicateSourceRef):
		return fmt.Errorf("job %s cannot be retried: a newer job for the same cast is active", id)
	default:
		return err
	}
}

func renderJobTable(p *printer, jobs []api.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		errText := ""
		if job.LastError != nil {
			errText = truncate(job.LastError.Message, 48)
		}
		rows = append(rows, []string{
			shortID(job.ID),
			job.SourceRef,
			job.State,
			strconv.Itoa(totalAttempts(job.Attempts)),
			job.UpdatedAt,
			errText,
		})
	}
	return p.table([]column{
		{title: "ID"},
		{title: "Source"},
		{title: "State", state: true},
		{title: "Attempts", numeric: true},
		{title: "Updated"},
		{title: "Last Error"},
	}, rows)
}

func printJobDetail(out io.Writer, job *api.Job) {
	fmt.Fprintf(out, "ID:          %s\n", job.ID)
	fmt.Fprintf(out, "Source:      %s\n", job.SourceRef)
	fmt.Fprintf(out, "State:       %s\n", job.State)
	fmt.Fprintf(out, "Created:     %s\n", job.CreatedAt)
	fmt.Fprintf(out, "Updated:     %s\n", job.UpdatedAt)
	if job.NextAttemptAt != "" {
		fmt.Fprintf(out, "Next try:    %s\n", job.NextAttemptAt)
	}
	if job.LastHeartbeat != "" {
		fmt.Fprintf(out, "Heartbeat:   %s\n", job.LastHeartbeat)
	}
	if job.FailedStage != "" {
		fmt.Fprintf(out, "Failed at:   %s\n", job.FailedStage)
	}
	if job.LastError != nil {
		fmt.Fprintf(out, "Last error:  [%s] %s\n", job.LastError.Kind, job.LastError.Message)
	}
	if len(job.Attempts) > 0 {
		fmt.Fprintln(out, "Attempts:")
		for _, key := range sortedKeys(job.Attempts) {
			fmt.Fprintf(out, "  %-11s %d\n", key, job.Attempts[key])
		}
	}
	if len(job.Artifacts) > 0 {
		fmt.Fprintln(out, "Artifacts:")
		for _, key := range sortedKeys(job.Artifacts) {
			fmt.Fprintf(out, "  %-11s %s\n", key, job.Artifacts[key])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func totalAttempts(attempts map[string]int) int {
	total := 0
	for _, n := range attempts {
		total += n
	}
	return total
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
