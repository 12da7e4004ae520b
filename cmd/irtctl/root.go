package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "irtctl",
		Short:        "Offline Rasch model calculations",
		Long:         "irtctl runs ability estimation, adaptive item selection and difficulty calibration on JSON input, without a database.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("input", "i", "-", "JSON input file, - for stdin")
	root.PersistentFlags().Bool("pretty", false, "Indent JSON output")

	root.AddCommand(newEstimateCmd())
	root.AddCommand(newSelectCmd())
	root.AddCommand(newDifficultyCmd())
	return root
}

// readInput decodes the --input file (or stdin) into v. Unknown fields are
// rejected so typos in keys do not silently default to zero.
func readInput(cmd *cobra.Command, v interface{}) error {
	path, _ := cmd.Flags().GetString("input")

	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}

func writeOutput(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
