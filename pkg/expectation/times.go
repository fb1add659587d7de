package expectation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnit names the unit of a TimeToLive or Delay.
type TimeUnit string

// Supported time units.
const (
	Nanoseconds  TimeUnit = "NANOSECONDS"
	Microseconds TimeUnit = "MICROSECONDS"
	Milliseconds TimeUnit = "MILLISECONDS"
	Seconds      TimeUnit = "SECONDS"
	Minutes      TimeUnit = "MINUTES"
	Hours        TimeUnit = "HOURS"
	Days         TimeUnit = "DAYS"
)

var timeUnits = map[TimeUnit]time.Duration{
	Nanoseconds:  time.Nanosecond,
	Microseconds: time.Microsecond,
	Milliseconds: time.Millisecond,
	Seconds:      time.Second,
	Minutes:      time.Minute,
	Hours:        time.Hour,
	Days:         24 * time.Hour,
}

// Valid reports whether u is a known unit.
func (u TimeUnit) Valid() bool {
	_, ok := timeUnits[TimeUnit(strings.ToUpper(string(u)))]
	return ok
}

// Duration converts amount in this unit to a time.Duration. Unknown units
// are treated as milliseconds. Amounts beyond the range of time.Duration
// saturate at its maximum or minimum.
func (u TimeUnit) Duration(amount int64) time.Duration {
	unit, ok := timeUnits[TimeUnit(strings.ToUpper(string(u)))]
	if !ok {
		unit = time.Millisecond
	}
	switch {
	case amount > int64(maxDuration/unit):
		return maxDuration
	case amount < int64(minDuration/unit):
		return minDuration
	}
	return time.Duration(amount) * unit
}

const (
	maxDuration = time.Duration(math.MaxInt64)
	minDuration = time.Duration(math.MinInt64)
)

// Times is the usage budget of an Expectation.
type Times struct {
	RemainingTimes int  `json:"remainingTimes,omitempty" yaml:"remainingTimes,omitempty"`
	Unlimited      bool `json:"unlimited,omitempty" yaml:"unlimited,omitempty"`
}

// Once allows a single match.
func Once() *Times {
	return Exactly(1)
}

// Exactly allows n matches.
func Exactly(n int) *Times {
	return &Times{RemainingTimes: n}
}

// Unlimited never runs out.
func Unlimited() *Times {
	return &Times{Unlimited: true}
}

func (t *Times) String() string {
	if t == nil || t.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d remaining", t.RemainingTimes)
}

// TimeToLive bounds how long an Expectation may match after it is created.
type TimeToLive struct {
	TimeUnit   TimeUnit `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`
	TimeToLive int64    `json:"timeToLive,omitempty" yaml:"timeToLive,omitempty"`
	Unlimited  bool     `json:"unlimited,omitempty" yaml:"unlimited,omitempty"`
}

// ExpiresAfter returns a TimeToLive of amount in unit.
func ExpiresAfter(unit TimeUnit, amount int64) *TimeToLive {
	return &TimeToLive{TimeUnit: unit, TimeToLive: amount}
}

// NeverExpires returns an unlimited TimeToLive.
func NeverExpires() *TimeToLive {
	return &TimeToLive{Unlimited: true}
}

// EndTime computes the instant after which an Expectation created at created
// is expired. The zero time means it never expires.
func (t *TimeToLive) EndTime(created time.Time) time.Time {
	if t == nil || t.Unlimited {
		return time.Time{}
	}
	return created.Add(t.TimeUnit.Duration(t.TimeToLive))
}

func (t *TimeToLive) String() string {
	if t == nil || t.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d %s", t.TimeToLive, strings.ToLower(string(t.TimeUnit)))
}

// Delay postpones an action.
type Delay struct {
	TimeUnit TimeUnit `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`
	Value    int64    `json:"value" yaml:"value"`
}

// Duration returns the delay as a time.Duration; a nil delay is zero.
func (d *Delay) Duration() time.Duration {
	if d == nil {
		return 0
	}
	return d.TimeUnit.Duration(d.Value)
}
