package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mock-server/mockserver-sub017/internal/matching"
	"github.com/mock-server/mockserver-sub017/internal/storage"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/httputil"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleCreateExpectations(w http.ResponseWriter, r *http.Request) {
	data, err := httputil.ReadBody(r, s.maxBodySize)
	if err != nil {
		httputil.WriteBodyError(w, err)
		return
	}
	es, err := expectation.ParseExpectations(data)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeInvalidJSON, "invalid JSON: "+err.Error())
		return
	}
	if len(es) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, "no expectations in request body")
		return
	}

	// Validate the whole batch first so that a bad entry stores nothing.
	var errs []error
	for i, e := range es {
		if e == nil {
			errs = append(errs, fmt.Errorf("expectation %d: %w", i, storage.ErrNilExpectation))
			continue
		}
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("expectation %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		httputil.WriteBadRequest(w, err)
		return
	}

	stored := make([]*expectation.Expectation, 0, len(es))
	for _, e := range es {
		out, err := s.engine.AddExpectation(e)
		if errors.Is(err, storage.ErrCapacity) {
			httputil.WriteError(w, http.StatusInsufficientStorage, httputil.CodeCapacity, err.Error())
			return
		}
		if err != nil {
			httputil.WriteBadRequest(w, err)
			return
		}
		stored = append(stored, out)
	}
	httputil.WriteJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	typ := ClearType(strings.ToLower(r.URL.Query().Get("type")))
	if typ == "" {
		typ = ClearAll
	}
	if typ != ClearAll && typ != ClearExpectations && typ != ClearLog {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation,
			fmt.Sprintf("unknown clear type %q, expected all, expectations or log", typ))
		return
	}
	filter, ok := s.readFilter(w, r)
	if !ok {
		return
	}

	var resp ClearResponse
	if typ == ClearAll || typ == ClearExpectations {
		switch {
		case filter.ExpectationID != "":
			if s.engine.RemoveExpectation(filter.ExpectationID) {
				resp.ExpectationsRemoved = 1
			}
		default:
			n, err := s.engine.ClearExpectations(filter.Pattern)
			if err != nil {
				httputil.WriteBadRequest(w, err)
				return
			}
			resp.ExpectationsRemoved = n
		}
	}
	if typ == ClearAll || typ == ClearLog {
		match, err := s.entryMatcher(filter)
		if err != nil {
			httputil.WriteBadRequest(w, err)
			return
		}
		if filter.IsZero() {
			resp.RequestsRemoved = s.engine.Requests().Count()
			s.engine.Requests().Clear()
		} else {
			resp.RequestsRemoved = s.engine.Requests().RemoveMatching(match)
		}
	}

	s.log.Info("cleared",
		"type", typ,
		"expectationId", filter.ExpectationID,
		"pattern", filter.Pattern.String(),
		"expectationsRemoved", resp.ExpectationsRemoved,
		"requestsRemoved", resp.RequestsRemoved,
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.Reset()
	s.log.Info("reset")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	typ := RetrieveType(strings.ToLower(query.Get("type")))
	if typ == "" {
		typ = RetrieveRequests
	}
	format := strings.ToLower(query.Get("format"))
	if format != "" && format != "json" && format != "yaml" {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation,
			fmt.Sprintf("unknown format %q, expected json or yaml", format))
		return
	}
	if format == "yaml" && typ != RetrieveActiveExpectations {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation,
			"yaml format is only available for active_expectations")
		return
	}
	filter, ok := s.readFilter(w, r)
	if !ok {
		return
	}

	switch typ {
	case RetrieveActiveExpectations:
		es, err := s.engine.ActiveExpectations(filter.Pattern)
		if err != nil {
			httputil.WriteBadRequest(w, err)
			return
		}
		if filter.ExpectationID != "" {
			es = selectByID(es, filter.ExpectationID)
		}
		if format == "yaml" {
			s.writeYAML(w, es)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, es)

	case RetrieveRequests, RetrieveLogEntries:
		entries, err := s.matchingEntries(filter)
		if err != nil {
			httputil.WriteBadRequest(w, err)
			return
		}
		if typ == RetrieveLogEntries {
			httputil.WriteJSON(w, http.StatusOK, entries)
			return
		}
		requests := make([]*expectation.HttpRequest, 0, len(entries))
		for _, e := range entries {
			requests = append(requests, e.Request)
		}
		httputil.WriteJSON(w, http.StatusOK, requests)

	default:
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation,
			fmt.Sprintf("unknown retrieve type %q, expected requests, log_entries or active_expectations", typ))
	}
}

func (s *Server) writeYAML(w http.ResponseWriter, v any) {
	data, err := yaml.Marshal(v)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func selectByID(es []*expectation.Expectation, id string) []*expectation.Expectation {
	out := make([]*expectation.Expectation, 0, 1)
	for _, e := range es {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var v verification.Verification
	if err := httputil.DecodeJSON(r, &v, s.maxBodySize); err != nil {
		httputil.WriteBodyError(w, err)
		return
	}
	result, err := s.engine.Verify(&v)
	s.writeVerification(w, result, err)
}

func (s *Server) handleVerifySequence(w http.ResponseWriter, r *http.Request) {
	var seq verification.Sequence
	if err := httputil.DecodeJSON(r, &seq, s.maxBodySize); err != nil {
		httputil.WriteBodyError(w, err)
		return
	}
	result, err := s.engine.VerifySequence(&seq)
	s.writeVerification(w, result, err)
}

func (s *Server) writeVerification(w http.ResponseWriter, result *verification.Result, err error) {
	switch {
	case err != nil:
		httputil.WriteBadRequest(w, err)
	case result.Passed:
		w.WriteHeader(http.StatusAccepted)
	default:
		httputil.WriteText(w, http.StatusNotAcceptable, result.Message)
	}
}

// readFilter decodes the optional /clear and /retrieve body. On failure it
// writes the error response and returns false.
func (s *Server) readFilter(w http.ResponseWriter, r *http.Request) (*Filter, bool) {
	data, err := httputil.ReadBody(r, s.maxBodySize)
	if err != nil {
		httputil.WriteBodyError(w, err)
		return nil, false
	}
	filter, err := ParseFilter(data)
	if err != nil {
		httputil.WriteBadRequest(w, err)
		return nil, false
	}
	return filter, true
}

// ParseFilter decodes a /clear or /retrieve body: empty, {"id": "..."}, a
// request pattern, or a request pattern wrapped as {"httpRequest": {...}}.
func ParseFilter(data []byte) (*Filter, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &Filter{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if raw, ok := fields["id"]; ok && len(fields) == 1 {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("invalid expectation id: %w", err)
		}
		return &Filter{ExpectationID: id}, nil
	}
	if raw, ok := fields["httpRequest"]; ok {
		data = raw
	}
	var def expectation.RequestDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Filter{Pattern: &def}, nil
}

// entryMatcher compiles filter into a predicate over log entries.
func (s *Server) entryMatcher(filter *Filter) (func(*requestlog.Entry) bool, error) {
	if filter.ExpectationID != "" {
		return func(e *requestlog.Entry) bool {
			return e.Outcome.ExpectationID == filter.ExpectationID
		}, nil
	}
	m, err := matching.Compile(filter.Pattern, s.matchOpts)
	if err != nil {
		return nil, err
	}
	return func(e *requestlog.Entry) bool {
		return e.Request != nil && m.Matches(e.Request)
	}, nil
}

// matchingEntries returns the logged entries selected by filter, oldest first.
func (s *Server) matchingEntries(filter *Filter) ([]*requestlog.Entry, error) {
	entries := s.engine.Requests().Snapshot()
	if filter.IsZero() {
		return entries, nil
	}
	match, err := s.entryMatcher(filter)
	if err != nil {
		return nil, err
	}
	out := make([]*requestlog.Entry, 0, len(entries))
	for _, e := range entries {
		if match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
