package expectation

import (
	"encoding/json"
	"fmt"
)

// Expectation pairs a request pattern with an action.
type Expectation struct {
	// ID identifies the expectation; adding an expectation with an existing
	// ID replaces it.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Priority orders matching; higher values are tried first.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`

	// HttpRequest is the pattern; nil matches every request.
	HttpRequest *RequestDefinition `json:"httpRequest,omitempty" yaml:"httpRequest,omitempty"`

	// Exactly one action is set.
	HttpResponse *HttpResponse `json:"httpResponse,omitempty" yaml:"httpResponse,omitempty"`
	HttpForward  *HttpForward  `json:"httpForward,omitempty" yaml:"httpForward,omitempty"`
	HttpError    *HttpError    `json:"httpError,omitempty" yaml:"httpError,omitempty"`
	HttpCallback *HttpCallback `json:"httpCallback,omitempty" yaml:"httpCallback,omitempty"`

	// Times is the usage budget; nil is unlimited.
	Times *Times `json:"times,omitempty" yaml:"times,omitempty"`

	// TimeToLive bounds the lifetime; nil is unlimited.
	TimeToLive *TimeToLive `json:"timeToLive,omitempty" yaml:"timeToLive,omitempty"`
}

// When starts an expectation for the given request pattern.
func When(req *RequestDefinition) *Expectation {
	return &Expectation{HttpRequest: req}
}

// Respond sets a response action and returns e.
func (e *Expectation) Respond(resp *HttpResponse) *Expectation {
	e.HttpResponse = resp
	return e
}

// ForwardTo sets a forward action and returns e.
func (e *Expectation) ForwardTo(fwd *HttpForward) *Expectation {
	e.HttpForward = fwd
	return e
}

// WithTimes sets the usage budget and returns e.
func (e *Expectation) WithTimes(t *Times) *Expectation {
	e.Times = t
	return e
}

// WithTimeToLive sets the lifetime and returns e.
func (e *Expectation) WithTimeToLive(ttl *TimeToLive) *Expectation {
	e.TimeToLive = ttl
	return e
}

// WithPriority sets the priority and returns e.
func (e *Expectation) WithPriority(p int) *Expectation {
	e.Priority = p
	return e
}

// WithID sets the id and returns e.
func (e *Expectation) WithID(id string) *Expectation {
	e.ID = id
	return e
}

// Action reports which action is set, or "" when none is.
func (e *Expectation) Action() ActionType {
	switch {
	case e.HttpResponse != nil:
		return ActionRespond
	case e.HttpForward != nil:
		return ActionForward
	case e.HttpError != nil:
		return ActionError
	case e.HttpCallback != nil:
		return ActionCallback
	default:
		return ""
	}
}

// Clone returns a deep copy.
func (e *Expectation) Clone() *Expectation {
	if e == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("expectation: clone %s: %v", e.ID, err))
	}
	var out Expectation
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("expectation: clone %s: %v", e.ID, err))
	}
	return &out
}

func (e *Expectation) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("expectation %s", e.ID)
	}
	return string(data)
}

// ParseExpectations decodes either a single expectation document or an array.
func ParseExpectations(data []byte) ([]*Expectation, error) {
	data = trimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var out []*Expectation
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var single Expectation
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []*Expectation{&single}, nil
}
