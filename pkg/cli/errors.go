package cli

import (
	"errors"
	"fmt"

	"github.com/mock-server/mockserver-sub017/pkg/client"
)

// ErrVerificationFailed wraps the server's explanation of a failed verification.
var ErrVerificationFailed = errors.New("verification failed")

// FormatError returns a user-friendly message for err.
func FormatError(err error) string {
	if client.IsConnectionError(err) {
		return fmt.Sprintf(`Error: %s

Suggestions:
  • Start a server: mockserver serve
  • Check the --server URL or the %s environment variable`, err, EnvServerURL)
	}
	return "Error: " + err.Error()
}

func verificationFailed(err error) error {
	var verr *client.VerificationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w:\n%s", ErrVerificationFailed, verr.Message)
	}
	return err
}
