package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mock-server/mockserver-sub017/pkg/engine/api"
)

var (
	clearFilter filterFlags
	clearType   string
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove expectations and recorded requests",
	Long: `Remove the expectations and recorded requests selected by the filter flags,
or everything when no filter is given. --type limits what is removed.`,
	Example: `  mockserver clear
  mockserver clear --type log --path /health
  mockserver clear --type expectations --id 5f1c...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter, err := clearFilter.build()
		if err != nil {
			return err
		}
		result, err := newClient().Clear(filter, api.ClearType(clearType))
		if err != nil {
			return err
		}
		return printResult(cmd, result, func(w io.Writer) {
			fmt.Fprintf(w, "Removed %d expectation(s) and %d recorded request(s)\n",
				result.ExpectationsRemoved, result.RequestsRemoved)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every expectation and recorded request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newClient().Reset(); err != nil {
			return err
		}
		return printResult(cmd, map[string]bool{"reset": true}, func(w io.Writer) {
			fmt.Fprintln(w, "Server reset")
		})
	},
}

func init() {
	clearFilter.bind(clearCmd.Flags())
	clearCmd.Flags().StringVar(&clearType, "type", string(api.ClearAll), "What to remove (all, expectations, log)")

	rootCmd.AddCommand(clearCmd, resetCmd)
}
