package cmd

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/directive"
	"github.com/DomeenoH/dual/internal/notepad"
	"github.com/DomeenoH/dual/internal/step"
	"github.com/DomeenoH/dual/internal/telemetry"
)

var stepOpts struct {
	profile      string
	promptFile   string
	systemFile   string
	role         string
	purpose      string
	imageFile    string
	resumeFile   string
	notepadFile  string
	showThoughts bool
	jsonOutput   bool
	writeNotepad bool
	stepID       string
	instructions bool
}

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Run a single discussion turn",
	Long: `Sends a prompt to the configured model profile, streams the reply to the
terminal and parses the directive block at the end of the reply. With --notepad
the directives are applied to the given notepad file.`,
	RunE: runStep,
}

func init() {
	f := stepCmd.Flags()
	f.StringVar(&stepOpts.profile, "profile", "", "Model profile name from the configuration")
	f.StringVar(&stepOpts.promptFile, "prompt", "-", "File holding the prompt, - for stdin")
	f.StringVar(&stepOpts.systemFile, "system", "", "File holding the system instruction")
	f.StringVar(&stepOpts.role, "role", "assistant", "Persona the turn is spoken by")
	f.StringVar(&stepOpts.purpose, "purpose", "discussion", "Purpose label of the turn")
	f.StringVar(&stepOpts.imageFile, "image", "", "Image to attach to the prompt")
	f.StringVar(&stepOpts.resumeFile, "resume-context", "", "JSON file with the discussion log and turn coordinates")
	f.StringVar(&stepOpts.notepadFile, "notepad", "", "Notepad document the directives are applied to")
	f.BoolVar(&stepOpts.writeNotepad, "write", false, "Write the patched notepad back to --notepad")
	f.BoolVar(&stepOpts.showThoughts, "thoughts", false, "Show the model's streamed thoughts")
	f.BoolVar(&stepOpts.jsonOutput, "json", false, "Print the parsed response as JSON")
	f.StringVar(&stepOpts.stepID, "step-id", "", "Step id, generated when empty")
	f.BoolVar(&stepOpts.instructions, "instructions", false, "Append notepad and directive block instructions to the system instruction")

	_ = stepCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(stepCmd)
}

func runStep(cmd *cobra.Command, args []string) error {
	ctx := setupContext()

	profile, err := cfg.Profile(stepOpts.profile)
	if err != nil {
		return err
	}
	req, err := buildStepRequest(cmd, profile)
	if err != nil {
		return err
	}

	store := newTerminalStore(cmd.ErrOrStderr(), stepOpts.showThoughts)
	eng, err := createEngine(ctx, store, store)
	if err != nil {
		return err
	}
	defer eng.close()

	log.WithFields(logrus.Fields{"step": req.StepID, "profile": profile.Name, "model": profile.Model}).Info("Running step")
	outcome, err := eng.executor.Execute(ctx, req)
	if err != nil {
		return err
	}
	return reportOutcome(cmd, outcome)
}

func buildStepRequest(cmd *cobra.Command, profile ai.ModelProfile) (step.Request, error) {
	prompt, err := readInput(stepOpts.promptFile, cmd.InOrStdin())
	if err != nil {
		return step.Request{}, err
	}
	req := step.Request{
		StepID:  stepOpts.stepID,
		Prompt:  prompt,
		Profile: profile,
		Role:    stepOpts.role,
		Purpose: stepOpts.purpose,
	}
	if req.StepID == "" {
		req.StepID = telemetry.NewStepID()
	}
	if stepOpts.systemFile != "" {
		if req.SystemInstruction, err = readInput(stepOpts.systemFile, nil); err != nil {
			return step.Request{}, err
		}
	}
	if stepOpts.instructions {
		doc := ""
		if stepOpts.notepadFile != "" {
			if doc, err = readInput(stepOpts.notepadFile, nil); err != nil {
				return step.Request{}, err
			}
		}
		text, err := directive.Instructions(doc)
		if err != nil {
			return step.Request{}, err
		}
		req.SystemInstruction = strings.TrimSpace(req.SystemInstruction + "\n\n" + text)
	}
	if stepOpts.imageFile != "" {
		data, err := os.ReadFile(stepOpts.imageFile)
		if err != nil {
			return step.Request{}, fmt.Errorf("failed to read image: %w", err)
		}
		mediaType := mime.TypeByExtension(filepath.Ext(stepOpts.imageFile))
		if mediaType == "" {
			mediaType = "image/png"
		}
		req.Image = &ai.Image{MediaType: mediaType, Data: data}
	}
	if stepOpts.resumeFile != "" {
		b, err := os.ReadFile(stepOpts.resumeFile)
		if err != nil {
			return step.Request{}, fmt.Errorf("failed to read resume context: %w", err)
		}
		var rc step.ResumeContext
		if err := json.Unmarshal(b, &rc); err != nil {
			return step.Request{}, fmt.Errorf("failed to parse resume context: %w", err)
		}
		req.Resume = &rc
	}
	return req, nil
}

// reportOutcome prints the parsed response and applies its directives to the notepad when one was given
func reportOutcome(cmd *cobra.Command, outcome *step.Outcome) error {
	parsed := outcome.Parsed
	for _, r := range parsed.Rejected {
		log.WithError(r.Err).WithField("index", r.Index).Warn("Directive rejected")
	}
	if parsed.ParseError != nil {
		log.WithError(parsed.ParseError).Warn("Directive block could not be parsed")
	}

	if stepOpts.notepadFile != "" && len(parsed.Directives) > 0 {
		if err := applyToFile(cmd, stepOpts.notepadFile, parsed.Directives, len(parsed.Rejected), stepOpts.writeNotepad); err != nil {
			return err
		}
	}

	if stepOpts.jsonOutput {
		return printParsed(cmd, parsed)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", parsed.SpokenText)
	if parsed.EndSignal {
		fmt.Fprintln(cmd.OutOrStdout(), "[discussion complete]")
	}
	return nil
}

func applyToFile(cmd *cobra.Command, path string, directives []directive.Directive, rejected int, write bool) error {
	ctx, span := telemetry.StartApply(cmd.Context(), path)
	defer span.End()

	doc, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	result := notepad.Apply(doc, directives)
	telemetry.RecordApply(ctx, len(directives)-len(result.Errors), len(result.Errors), rejected)
	for _, e := range result.Errors {
		log.WithError(e.Err).WithField("index", e.Index).Warn(e.Error())
	}
	if !write {
		fmt.Fprint(cmd.OutOrStdout(), result.Document)
		return nil
	}
	if err := os.WriteFile(path, []byte(result.Document), 0o644); err != nil {
		return fmt.Errorf("failed to write notepad: %w", err)
	}
	log.WithFields(logrus.Fields{"file": path, "directives": len(directives), "failed": len(result.Errors)}).Info("Notepad updated")
	return nil
}
