package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DomeenoH/dual/internal/directive"
)

var applyOpts struct {
	directivesFile string
	write          bool
}

var applyCmd = &cobra.Command{
	Use:   "apply <notepad>",
	Short: "Apply a list of directives to a notepad document",
	Long: `Reads a JSON array of directives (or a full directive block with a
"notepad_modifications" field) and applies it to the notepad. The patched
document is printed unless --write is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyOpts.directivesFile, "directives", "-", "JSON file with the directives, - for stdin")
	applyCmd.Flags().BoolVar(&applyOpts.write, "write", false, "Write the patched document back to the notepad file")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	raw, err := readInput(applyOpts.directivesFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	directives, rejected, err := decodeDirectiveInput(raw)
	if err != nil {
		return err
	}
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("notepad %s: %w", args[0], err)
	}

	tp, err := createTelemetryProvider(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to flush telemetry")
		}
	}()
	return applyToFile(cmd, args[0], directives, len(rejected), applyOpts.write)
}

// decodeDirectiveInput accepts either a bare directive array or a reply containing a directive block
func decodeDirectiveInput(raw string) ([]directive.Directive, []directive.Rejection, error) {
	directives, rejected, err := directive.DecodeList([]byte(raw))
	if err != nil {
		parsed := directive.Parse("```json\n" + raw + "\n```")
		if parsed.ParseError != nil {
			return nil, nil, fmt.Errorf("failed to decode directives: %w", err)
		}
		directives, rejected = parsed.Directives, parsed.Rejected
	}
	for _, r := range rejected {
		log.WithError(r.Err).WithField("index", r.Index).Warn("Directive rejected")
	}
	return directives, rejected, nil
}
