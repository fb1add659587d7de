package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mock-server/mockserver-sub017/pkg/cli/internal/output"
	"github.com/mock-server/mockserver-sub017/pkg/client"
)

// EnvServerURL overrides the default --server value.
const EnvServerURL = "MOCKSERVER_URL"

// DefaultServerURL is the server the client commands talk to by default.
const DefaultServerURL = "http://localhost:1080"

var (
	// Persistent flags available to all subcommands
	serverURL  string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mockserver",
	Short: "mockserver is an HTTP mock server driven by expectations",
	Long: `mockserver answers HTTP requests from a set of expectations. Each expectation
pairs a request pattern with an action: a canned response, a forward to another
host, a callback, or a damaged connection. Every request is recorded so that
tests can verify what was received.

Run 'mockserver serve' to start a server. The other commands drive a running
server through its control plane at /mockserver.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, FormatError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(),
		"Mock server base URL (env "+EnvServerURL+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

func defaultServerURL() string {
	if v := os.Getenv(EnvServerURL); v != "" {
		return v
	}
	return DefaultServerURL
}

func newClient() *client.Client {
	return client.New(serverURL)
}

// printResult outputs a single operation result.
//
// When --json is active, ONLY the JSON encoding of data is written to stdout.
// textFn is called only in text mode.
func printResult(cmd *cobra.Command, data any, textFn func(w io.Writer)) error {
	if jsonOutput {
		return output.JSON(cmd.OutOrStdout(), data)
	}
	textFn(cmd.OutOrStdout())
	return nil
}
