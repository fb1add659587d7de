package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mock-server/mockserver-sub017/pkg/cli/internal/output"
	"github.com/mock-server/mockserver-sub017/pkg/engine/api"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
)

var (
	retrieveFilter filterFlags
	retrieveType   string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Show recorded requests",
	Long: `Show the recorded requests selected by the filter flags, oldest first.
--type log_entries adds the match outcome of each request.`,
	Example: `  mockserver retrieve
  mockserver retrieve --type log_entries --path '/api/.*'
  mockserver retrieve --id 5f1c... --json`,
	Args: cobra.NoArgs,
	RunE: runRetrieve,
}

func init() {
	retrieveFilter.bind(retrieveCmd.Flags())
	retrieveCmd.Flags().StringVar(&retrieveType, "type", string(api.RetrieveRequests), "What to show (requests, log_entries)")

	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, _ []string) error {
	filter, err := retrieveFilter.build()
	if err != nil {
		return err
	}
	c := newClient()

	switch api.RetrieveType(retrieveType) {
	case api.RetrieveRequests:
		requests, err := c.RetrieveRecordedRequests(filter)
		if err != nil {
			return err
		}
		return printResult(cmd, requests, func(w io.Writer) {
			writeRequestTable(w, requests)
		})
	case api.RetrieveLogEntries:
		entries, err := c.RetrieveLogEntries(filter)
		if err != nil {
			return err
		}
		return printResult(cmd, entries, func(w io.Writer) {
			writeLogEntryTable(w, entries)
		})
	default:
		return fmt.Errorf("unknown type %q, expected requests or log_entries", retrieveType)
	}
}

func writeRequestTable(w io.Writer, requests []*expectation.HttpRequest) {
	if len(requests) == 0 {
		fmt.Fprintln(w, "No recorded requests")
		return
	}
	tw := output.Table(w)
	fmt.Fprintln(tw, "METHOD\tPATH\tBODY")
	for _, r := range requests {
		fmt.Fprintf(tw, "%s\t%s\t%d bytes\n", r.Method, r.Path, len(r.Body))
	}
	_ = tw.Flush()
}

func writeLogEntryTable(w io.Writer, entries []*requestlog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recorded requests")
		return
	}
	tw := output.Table(w)
	fmt.Fprintln(tw, "TIME\tMETHOD\tPATH\tMATCHED\tEXPECTATION")
	for _, e := range entries {
		method, path := "", ""
		if e.Request != nil {
			method, path = e.Request.Method, e.Request.Path
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			e.Timestamp.Format(time.RFC3339), method, path, e.Outcome.Matched, e.Outcome.ExpectationID)
	}
	_ = tw.Flush()
}
