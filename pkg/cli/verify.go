package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

type verifyFlags struct {
	filter  filterFlags
	atLeast int
	atMost  int
	exactly int
}

var (
	verifyFlagVals verifyFlags
	verifySeqFile  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check how often a request was received",
	Long: `Check that the requests selected by the filter flags were received a number
of times. Without count flags at least one request must have been received.
The command fails and prints what was recorded when the check fails.`,
	Example: `  mockserver verify --method GET --path /orders
  mockserver verify --path /orders --exactly 2
  mockserver verify --id 5f1c... --at-most 0`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

var verifySequenceCmd = &cobra.Command{
	Use:   "verify-sequence [[METHOD] PATH]...",
	Short: "Check that requests were received in order",
	Long: `Check that requests matching each pattern were received in the given order.
Each argument is a path, or a method and a path separated by a space. The
patterns can also be given as a JSON document with --file.`,
	Example: `  mockserver verify-sequence "POST /login" "GET /profile"
  mockserver verify-sequence --file sequence.json`,
	RunE: runVerifySequence,
}

func init() {
	f := verifyCmd.Flags()
	verifyFlagVals.filter.bind(f)
	f.IntVar(&verifyFlagVals.atLeast, "at-least", 1, "Minimum number of requests")
	f.IntVar(&verifyFlagVals.atMost, "at-most", -1, "Maximum number of requests (-1 for no limit)")
	f.IntVar(&verifyFlagVals.exactly, "exactly", -1, "Exact number of requests")

	verifySequenceCmd.Flags().StringVarP(&verifySeqFile, "file", "f", "", "JSON file holding {\"httpRequests\": [...]}")

	rootCmd.AddCommand(verifyCmd, verifySequenceCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	v := &verification.Verification{}
	filter, err := verifyFlagVals.filter.build()
	if err != nil {
		return err
	}
	if filter != nil {
		v.ExpectationID = filter.ExpectationID
		v.HttpRequest = filter.Pattern
	}

	atLeast := verifyFlagVals.atLeast
	// --at-most alone means zero up to the bound.
	if cmd.Flags().Changed("at-most") && !cmd.Flags().Changed("at-least") {
		atLeast = 0
	}
	times := verification.Between(atLeast, verifyFlagVals.atMost)
	if verifyFlagVals.exactly >= 0 {
		if cmd.Flags().Changed("at-least") || cmd.Flags().Changed("at-most") {
			return errors.New("--exactly cannot be combined with --at-least or --at-most")
		}
		times = verification.Exactly(verifyFlagVals.exactly)
	}
	if err := times.Validate(); err != nil {
		return err
	}
	v.Times = &times

	if err := newClient().Verify(v); err != nil {
		return verificationFailed(err)
	}
	return printResult(cmd, map[string]any{"passed": true, "times": times}, func(w io.Writer) {
		fmt.Fprintf(w, "Verification passed: %s\n", times)
	})
}

func runVerifySequence(cmd *cobra.Command, args []string) error {
	seq, err := buildSequence(args)
	if err != nil {
		return err
	}
	if err := newClient().VerifySequence(seq); err != nil {
		return verificationFailed(err)
	}
	return printResult(cmd, map[string]any{"passed": true, "requests": len(seq.HttpRequests)}, func(w io.Writer) {
		fmt.Fprintf(w, "Sequence of %d request(s) verified\n", len(seq.HttpRequests))
	})
}

func buildSequence(args []string) (*verification.Sequence, error) {
	if verifySeqFile != "" {
		if len(args) > 0 {
			return nil, errors.New("use either --file or patterns, not both")
		}
		data, err := os.ReadFile(verifySeqFile)
		if err != nil {
			return nil, fmt.Errorf("reading sequence: %w", err)
		}
		var seq verification.Sequence
		if err := json.Unmarshal(data, &seq); err != nil {
			return nil, fmt.Errorf("parsing sequence: %w", err)
		}
		return &seq, nil
	}
	if len(args) == 0 {
		return nil, errors.New("at least one request pattern is required")
	}
	seq := &verification.Sequence{}
	for _, arg := range args {
		seq.HttpRequests = append(seq.HttpRequests, parseRequestArg(arg))
	}
	return seq, nil
}

// parseRequestArg reads "PATH" or "METHOD PATH".
func parseRequestArg(arg string) *expectation.RequestDefinition {
	arg = strings.TrimSpace(arg)
	if method, path, ok := strings.Cut(arg, " "); ok {
		return expectation.Request(strings.ToUpper(method), strings.TrimSpace(path))
	}
	return expectation.Request("", arg)
}
