package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DomeenoH/dual/internal/directive"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract the directive block from a model reply",
	Long:  `Reads a raw model reply from a file or stdin and prints the spoken text, directives and end signal as JSON.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		raw, err := readInput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return printParsed(cmd, directive.Parse(raw))
	},
}

type parsedOutput struct {
	SpokenText string                `json:"spokenText"`
	Directives []directive.Directive `json:"directives"`
	EndSignal  bool                  `json:"endSignal"`
	ParseError string                `json:"parseError,omitempty"`
	Rejected   []string              `json:"rejected,omitempty"`
}

func printParsed(cmd *cobra.Command, p directive.ParsedResponse) error {
	out := parsedOutput{SpokenText: p.SpokenText, Directives: p.Directives, EndSignal: p.EndSignal}
	if out.Directives == nil {
		out.Directives = []directive.Directive{}
	}
	if p.ParseError != nil {
		out.ParseError = p.ParseError.Error()
	}
	for _, r := range p.Rejected {
		out.Rejected = append(out.Rejected, r.Error())
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal parsed response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
