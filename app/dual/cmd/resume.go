package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DomeenoH/dual/internal/snapshot"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [step-id]",
	Short: "Retry a failed step from its failure snapshot",
	Long: `Replays a step whose retries were exhausted, using the prompt and discussion
coordinates captured when it failed. Without a step id the stored snapshots are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

var resumeShowThoughts bool

func init() {
	resumeCmd.Flags().BoolVar(&resumeShowThoughts, "thoughts", false, "Show the model's streamed thoughts")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		store, err := snapshot.NewFileSystemStore(cfg.SnapshotDir)
		if err != nil {
			return err
		}
		return listSnapshots(cmd, store)
	}

	ctx := setupContext()
	store := newTerminalStore(cmd.ErrOrStderr(), resumeShowThoughts)
	eng, err := createEngine(ctx, store, store)
	if err != nil {
		return err
	}
	defer eng.close()

	snap, err := eng.snapshots.Get(args[0])
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no failure snapshot for step %s", args[0])
	}

	outcome, err := eng.executor.Resume(ctx, *snap)
	if err != nil {
		return err
	}
	if err := eng.snapshots.Delete(args[0]); err != nil {
		log.WithError(err).Warn("Failed to delete resumed snapshot")
	}
	return reportOutcome(cmd, outcome)
}

func listSnapshots(cmd *cobra.Command, store *snapshot.FileSystemStore) error {
	list, err := store.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No failed steps.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tROLE\tPROFILE\tFAILED AT\tERROR")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Request.StepID, s.Request.Role, s.Request.Profile.Name,
			s.FailedAt.Format("2006-01-02 15:04:05"), s.LastError)
	}
	return w.Flush()
}
