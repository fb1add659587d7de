package verification

import (
	"encoding/json"
	"errors"
	"fmt"
)

// VerificationTimes bounds how many matching requests are expected.
// A negative AtMost means there is no upper bound.
type VerificationTimes struct {
	AtLeast int
	AtMost  int
}

// Exactly expects n requests.
func Exactly(n int) VerificationTimes {
	return VerificationTimes{AtLeast: n, AtMost: n}
}

// AtLeast expects n or more requests.
func AtLeast(n int) VerificationTimes {
	return VerificationTimes{AtLeast: n, AtMost: -1}
}

// AtMost expects no more than n requests.
func AtMost(n int) VerificationTimes {
	return VerificationTimes{AtLeast: 0, AtMost: n}
}

// Between expects from lo to hi requests, inclusive.
func Between(lo, hi int) VerificationTimes {
	return VerificationTimes{AtLeast: lo, AtMost: hi}
}

// Once expects exactly one request.
func Once() VerificationTimes {
	return Exactly(1)
}

// Never expects no request.
func Never() VerificationTimes {
	return Exactly(0)
}

// Unlimited expects at least one request.
func Unlimited() VerificationTimes {
	return AtLeast(1)
}

// Matches reports whether count is within bounds.
func (t VerificationTimes) Matches(count int) bool {
	if count < t.AtLeast {
		return false
	}
	return t.AtMost < 0 || count <= t.AtMost
}

// Validate rejects negative or inverted bounds.
func (t VerificationTimes) Validate() error {
	if t.AtLeast < 0 {
		return errors.New("times.atLeast must not be negative")
	}
	if t.AtMost >= 0 && t.AtMost < t.AtLeast {
		return fmt.Errorf("times.atMost (%d) is less than times.atLeast (%d)", t.AtMost, t.AtLeast)
	}
	return nil
}

func (t VerificationTimes) String() string {
	switch {
	case t.AtMost < 0:
		return fmt.Sprintf("at least %d", t.AtLeast)
	case t.AtLeast == t.AtMost:
		return fmt.Sprintf("exactly %d", t.AtLeast)
	case t.AtLeast == 0:
		return fmt.Sprintf("at most %d", t.AtMost)
	default:
		return fmt.Sprintf("between %d and %d", t.AtLeast, t.AtMost)
	}
}

type timesJSON struct {
	AtLeast *int `json:"atLeast,omitempty"`
	AtMost  *int `json:"atMost,omitempty"`
}

// MarshalJSON omits atMost when there is no upper bound.
func (t VerificationTimes) MarshalJSON() ([]byte, error) {
	out := timesJSON{AtLeast: &t.AtLeast}
	if t.AtMost >= 0 {
		out.AtMost = &t.AtMost
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats a missing atMost as unbounded and a missing atLeast as
// zero.
func (t *VerificationTimes) UnmarshalJSON(data []byte) error {
	var in timesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	t.AtLeast, t.AtMost = 0, -1
	if in.AtLeast != nil {
		t.AtLeast = *in.AtLeast
	}
	if in.AtMost != nil {
		t.AtMost = *in.AtMost
	}
	return nil
}
