package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mock-server/mockserver-sub017/pkg/cli/internal/output"
	"github.com/mock-server/mockserver-sub017/pkg/config"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

var (
	listFilter filterFlags
	listFormat string
)

var expectationCmd = &cobra.Command{
	Use:     "expectation",
	Aliases: []string{"exp"},
	Short:   "Manage expectations on a running server",
}

var expectationAddCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Store expectations from JSON or YAML files",
	Long: `Store the expectations in each file. A file holds one expectation or a list.
Use - to read a JSON document from stdin. Expectations with an existing ID
replace the stored one.`,
	Example: `  mockserver expectation add expectations.yaml
  echo '{"httpRequest":{"path":"/hi"},"httpResponse":{"body":"hello"}}' | mockserver expectation add -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExpectationAdd,
}

var expectationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active expectations in match order",
	Example: `  mockserver expectation list
  mockserver expectation list --path '/api/.*' --format yaml`,
	Args: cobra.NoArgs,
	RunE: runExpectationList,
}

func init() {
	listFilter.bind(expectationListCmd.Flags())
	expectationListCmd.Flags().StringVar(&listFormat, "format", "table", "Output format (table, json, yaml)")

	expectationCmd.AddCommand(expectationAddCmd, expectationListCmd)
	rootCmd.AddCommand(expectationCmd)
}

func runExpectationAdd(cmd *cobra.Command, args []string) error {
	var es []*expectation.Expectation
	for _, arg := range args {
		loaded, err := readExpectations(cmd, arg)
		if err != nil {
			return err
		}
		es = append(es, loaded...)
	}
	if len(es) == 0 {
		return fmt.Errorf("no expectations found in %s", strings.Join(args, ", "))
	}

	stored, err := newClient().Upsert(es...)
	if err != nil {
		return err
	}
	return printResult(cmd, stored, func(w io.Writer) {
		fmt.Fprintf(w, "Stored %d expectation(s)\n", len(stored))
		writeExpectationTable(w, stored)
	})
}

func readExpectations(cmd *cobra.Command, arg string) ([]*expectation.Expectation, error) {
	if arg != "-" {
		return config.ReadExpectationFile(arg)
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	es, err := expectation.ParseExpectations(data)
	if err != nil {
		return nil, fmt.Errorf("parsing stdin: %w", err)
	}
	return es, nil
}

func runExpectationList(cmd *cobra.Command, _ []string) error {
	filter, err := listFilter.build()
	if err != nil {
		return err
	}
	c := newClient()

	format := strings.ToLower(listFormat)
	if jsonOutput {
		format = "json"
	}
	switch format {
	case "yaml":
		doc, err := c.RetrieveActiveExpectationsYAML(filter)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	case "json", "table":
		es, err := c.RetrieveActiveExpectations(filter)
		if err != nil {
			return err
		}
		if format == "json" {
			return output.JSON(cmd.OutOrStdout(), es)
		}
		if len(es) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active expectations")
			return nil
		}
		writeExpectationTable(cmd.OutOrStdout(), es)
		return nil
	default:
		return fmt.Errorf("unknown format %q, expected table, json or yaml", listFormat)
	}
}

func writeExpectationTable(w io.Writer, es []*expectation.Expectation) {
	tw := output.Table(w)
	fmt.Fprintln(tw, "ID\tPRIORITY\tREQUEST\tACTION\tTIMES\tTTL")
	for _, e := range es {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.Priority, e.HttpRequest.String(), e.Action(), e.Times.String(), e.TimeToLive.String())
	}
	_ = tw.Flush()
}
