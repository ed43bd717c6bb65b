package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forayproject/bout/internal/boutlog"
	"github.com/forayproject/bout/internal/checkpoint"
	"github.com/forayproject/bout/internal/format"
	"github.com/forayproject/bout/internal/job"
	"github.com/forayproject/bout/internal/progress"
)

// JobsCmd creates the "jobs" command with list/resume/cleanup subcommands.
func JobsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage transcription jobs",
		Long: `List, resume, and clean up checkpointed transcription jobs.

Jobs are stored one JSON file per job under the configured jobs
directory (BOUT_JOBS_DIR, default ~/.local/share/bout/jobs).`,
	}

	cmd.AddCommand(jobsListCmd(env))
	cmd.AddCommand(jobsResumeCmd(env))
	cmd.AddCommand(jobsCleanupCmd(env))

	return cmd
}

func openStore(env *Env) (*checkpoint.Store, error) {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return nil, err
	}
	return env.CheckpointFactory.NewStore(cfg.JobsDir)
}

func jobsListCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(env)
		},
	}
}

func runJobsList(env *Env) error {
	store, err := openStore(env)
	if err != nil {
		return err
	}

	jobs, err := store.GetAllJobs()
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(env.Stderr, "No jobs found.")
		return nil
	}

	for _, j := range jobs {
		fmt.Fprintf(env.Stderr, "%s  %-11s  %5.1f%%  %s\n", j.ID, j.Status, j.Progress()*100, j.VideoName)
	}
	return nil
}

func jobsResumeCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a checkpointed job from its last completed stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsResume(cmd, env, args[0])
		},
	}
}

func runJobsResume(cmd *cobra.Command, env *Env, id string) error {
	ctx := cmd.Context()

	store, err := openStore(env)
	if err != nil {
		return err
	}

	j, err := store.LoadJob(id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return err
	}

	if !j.Status.Resumable() {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotResumable, id, j.Status)
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}

	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}

	logger := boutlog.New(env.Stderr, boutlog.ParseLevel(cfg.LogLevel))
	logger.Debug("resolved ffmpeg at %s for resumed job %s", ffmpegPath, id)

	o := env.OrchestratorFactory.NewOrchestrator(cfg, store, ffmpegPath, cfg.HFToken != "")
	o.Logger = logger
	o.OnProgress = func(overall float64, stage progress.Stage, sp progress.StageProgress) {
		fmt.Fprintf(env.Stderr, "[%5.1f%%] %s: %s\n", overall*100, stage, sp.Description)
	}

	fmt.Fprintf(env.Stderr, "Resuming job %s from %s\n", j.ID, j.Status)

	result, err := o.Run(ctx, j, cfg.TempDir)
	if err != nil {
		return err
	}

	switch result.Status {
	case job.StatusCancelled:
		fmt.Fprintln(env.Stderr, "Interrupted; resume again with: bout jobs resume "+result.ID)
	case job.StatusCompleted:
		fmt.Fprintf(env.Stderr, "Done: %s\n", result.OutputPath)
	}

	return nil
}

func jobsCleanupCmd(env *Env) *cobra.Command {
	var (
		maxAge string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete terminal (completed/failed/cancelled) job records older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsCleanup(env, maxAge, dryRun)
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", "168h", "Minimum age before a terminal job is deleted")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be deleted without deleting")

	return cmd
}

func runJobsCleanup(env *Env, maxAge string, dryRun bool) error {
	age, err := time.ParseDuration(maxAge)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, maxAge)
	}

	store, err := openStore(env)
	if err != nil {
		return err
	}

	removed, err := store.CleanupOldJobs(age, dryRun)
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		fmt.Fprintln(env.Stderr, "Nothing to clean up.")
		return nil
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	for _, id := range removed {
		fmt.Fprintf(env.Stderr, "%s %s\n", verb, id)
	}
	fmt.Fprintf(env.Stderr, "%s %d job(s) older than %s\n", verb, len(removed), format.DurationHuman(age))
	return nil
}
