package api

import (
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// StatusResponse describes the running server.
type StatusResponse struct {
	Status              string `json:"status"`
	Version             string `json:"version,omitempty"`
	Ports               []int  `json:"ports"`
	UptimeSeconds       int64  `json:"uptimeSeconds"`
	Expectations        int    `json:"expectations"`
	ExpectationsVersion uint64 `json:"expectationsVersion"`
	Requests            int    `json:"requests"`
}

// ClearResponse reports what a clear removed.
type ClearResponse struct {
	ExpectationsRemoved int `json:"expectationsRemoved"`
	RequestsRemoved     int `json:"requestsRemoved"`
}

// ClearType selects what /clear removes.
type ClearType string

// Clear types.
const (
	ClearAll          ClearType = "all"
	ClearExpectations ClearType = "expectations"
	ClearLog          ClearType = "log"
)

// RetrieveType selects what /retrieve returns.
type RetrieveType string

// Retrieve types.
const (
	RetrieveRequests           RetrieveType = "requests"
	RetrieveLogEntries         RetrieveType = "log_entries"
	RetrieveActiveExpectations RetrieveType = "active_expectations"
)

// Filter is the body of /clear and /retrieve: either a request pattern or an
// expectation ID. The zero Filter selects everything.
type Filter struct {
	ExpectationID string
	Pattern       *expectation.RequestDefinition
}

// IsZero reports whether the filter selects everything.
func (f *Filter) IsZero() bool {
	return f == nil || (f.ExpectationID == "" && f.Pattern == nil)
}
