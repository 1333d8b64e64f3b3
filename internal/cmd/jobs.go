package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quayside/s3glob/pkg/jobregistry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect past and in-flight download jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded download jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the full record for one download job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	registry := jobregistry.NewStore(jobsDirFor(cmd.Context()))
	jobs, err := registry.List()
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no jobs recorded")
		return nil
	}
	for _, j := range jobs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %-8s  %s -> %s\n",
			j.JobID, j.State, j.PathMode, j.Pattern, j.Dest)
	}
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	registry := jobregistry.NewStore(jobsDirFor(cmd.Context()))
	job, err := registry.Get(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidUsage, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job_id:             %s\n", job.JobID)
	fmt.Fprintf(out, "state:              %s\n", job.State)
	fmt.Fprintf(out, "pattern:            %s\n", job.Pattern)
	fmt.Fprintf(out, "dest:               %s\n", job.Dest)
	fmt.Fprintf(out, "path_mode:          %s\n", job.PathMode)
	fmt.Fprintf(out, "objects_downloaded: %d\n", job.ObjectsDownloaded)
	fmt.Fprintf(out, "bytes_downloaded:   %d\n", job.BytesDownloaded)
	fmt.Fprintf(out, "errors:             %d\n", job.Errors)
	if job.Identity != nil {
		fmt.Fprintf(out, "region:             %s\n", job.Identity.Region)
	}
	return nil
}
