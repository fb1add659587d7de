package requestlog

import (
	"time"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// Entry captures one received request and what the server decided to do with it.
type Entry struct {
	// ID is a unique, time-sortable identifier for the log entry.
	ID string `json:"id"`

	// CorrelationID ties the entry to server logs and to the request itself.
	CorrelationID string `json:"correlationId"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`

	// Request is a snapshot of the decoded request.
	Request *expectation.HttpRequest `json:"httpRequest"`

	// Outcome describes the match decision.
	Outcome Outcome `json:"outcome"`
}

// Outcome is the result of matching a request against the stored expectations.
type Outcome struct {
	// Matched is true when an expectation was selected.
	Matched bool `json:"matched"`

	// ExpectationID is the selected expectation.
	ExpectationID string `json:"expectationId,omitempty"`

	// Action is the kind of action the selected expectation carries.
	Action expectation.ActionType `json:"action,omitempty"`

	// NearMisses lists the closest expectations for unmatched requests.
	NearMisses []NearMissInfo `json:"nearMisses,omitempty"`
}

// Summary is a short description for logs and listings.
func (e *Entry) Summary() string {
	if e.Request == nil {
		return e.ID
	}
	if e.Outcome.Matched {
		return e.Request.Summary() + " -> " + e.Outcome.ExpectationID
	}
	return e.Request.Summary() + " -> no match"
}
