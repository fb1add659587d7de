package cli

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := newClient().Status()
		if err != nil {
			return err
		}
		return printResult(cmd, status, func(w io.Writer) {
			fmt.Fprintf(w, "Server:        %s (%s)\n", serverURL, status.Status)
			if status.Version != "" {
				fmt.Fprintf(w, "Version:       %s\n", status.Version)
			}
			fmt.Fprintf(w, "Ports:         %v\n", status.Ports)
			fmt.Fprintf(w, "Uptime:        %s\n", time.Duration(status.UptimeSeconds)*time.Second)
			fmt.Fprintf(w, "Expectations:  %d (version %d)\n", status.Expectations, status.ExpectationsVersion)
			fmt.Fprintf(w, "Requests:      %d\n", status.Requests)
		})
	},
}

// VersionOutput is the JSON output of the version command.
type VersionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := VersionOutput{
			Version:   Version,
			Commit:    Commit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		return printResult(cmd, out, func(w io.Writer) {
			fmt.Fprintf(w, "mockserver %s (commit %s, built %s, %s %s)\n",
				out.Version, out.Commit, out.BuildDate, out.GoVersion, out.Platform)
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, versionCmd)
}
