package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"trendreversal/internal/filter"
)

var matrixOut string

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Write the 128-row gate combination table",
	Long: `Writes every on/off combination of the six gates and the trailing exit as a
configuration table (ids C000-C127). Thresholds and policies come from the
first row of --config, or the defaults.

Example:
  backtest matrix --out configs.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := selectedConfig()
		if err != nil {
			return err
		}
		var w io.Writer = os.Stdout
		if matrixOut != "" {
			f, err := os.Create(matrixOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return filter.WriteCSV(w, filter.Matrix(base))
	},
}

func init() {
	rootCmd.AddCommand(matrixCmd)
	matrixCmd.Flags().StringVar(&matrixOut, "out", "", "Output CSV path (default: stdout)")
}
