package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DomeenoH/dual/internal/directive"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the directive block",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := directive.SchemaJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
