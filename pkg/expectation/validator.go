package expectation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// headerNameRegex validates HTTP header names (RFC 7230).
var headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

// Validate checks the structure of the expectation. Pattern compilation
// (regular expressions, schemas, XPath) is checked separately when the
// expectation is compiled into a matcher.
func (e *Expectation) Validate() error {
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	actions := 0
	for _, set := range []bool{e.HttpResponse != nil, e.HttpForward != nil, e.HttpError != nil, e.HttpCallback != nil} {
		if set {
			actions++
		}
	}
	switch {
	case actions == 0:
		add("action", "one of httpResponse, httpForward, httpError or httpCallback is required")
	case actions > 1:
		add("action", "only one of httpResponse, httpForward, httpError or httpCallback may be set")
	}

	if e.Times != nil && !e.Times.Unlimited && e.Times.RemainingTimes < 0 {
		add("times.remainingTimes", "must not be negative, got %d", e.Times.RemainingTimes)
	}
	if ttl := e.TimeToLive; ttl != nil && !ttl.Unlimited {
		if ttl.TimeToLive < 0 {
			add("timeToLive.timeToLive", "must not be negative, got %d", ttl.TimeToLive)
		}
		if !ttl.TimeUnit.Valid() {
			add("timeToLive.timeUnit", "unknown time unit %q", ttl.TimeUnit)
		}
	}

	if e.HttpRequest != nil {
		errs = append(errs, e.HttpRequest.validate("httpRequest")...)
	}
	if r := e.HttpResponse; r != nil {
		if r.StatusCode != 0 && (r.StatusCode < 100 || r.StatusCode > 599) {
			add("httpResponse.statusCode", "must be between 100 and 599, got %d", r.StatusCode)
		}
		for _, h := range r.Headers.Entries {
			if !headerNameRegex.MatchString(h.Name.Value) {
				add("httpResponse.headers", "invalid header name %q", h.Name.Value)
			}
		}
		if r.Body != nil {
			if _, err := r.Body.Bytes(); err != nil {
				add("httpResponse.body", "%v", err)
			}
		}
		errs = append(errs, validateDelay("httpResponse.delay", r.Delay)...)
	}
	if f := e.HttpForward; f != nil {
		if f.Host == "" {
			add("httpForward.host", "host is required")
		}
		if f.Port < 0 || f.Port > 65535 {
			add("httpForward.port", "must be between 0 and 65535, got %d", f.Port)
		}
		if s := f.URLScheme(); s != "http" && s != "https" {
			add("httpForward.scheme", "must be HTTP or HTTPS, got %q", f.Scheme)
		}
		errs = append(errs, validateDelay("httpForward.delay", f.Delay)...)
	}
	if x := e.HttpError; x != nil {
		if _, err := base64.StdEncoding.DecodeString(x.ResponseBytes); err != nil {
			add("httpError.responseBytes", "invalid base64: %v", err)
		}
		errs = append(errs, validateDelay("httpError.delay", x.Delay)...)
	}
	if c := e.HttpCallback; c != nil {
		u, err := url.Parse(c.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			add("httpCallback.url", "must be an absolute http(s) URL, got %q", c.URL)
		}
		errs = append(errs, validateDelay("httpCallback.delay", c.Delay)...)
	}
	return errors.Join(errs...)
}

// Validate checks the structure of a standalone request pattern, such as one
// used for verification.
func (d *RequestDefinition) Validate() error {
	if d == nil {
		return nil
	}
	return errors.Join(d.validate("httpRequest")...)
}

func (d *RequestDefinition) validate(prefix string) []error {
	var errs []error
	if d.Body != nil {
		if !d.Body.Type.Valid() {
			errs = append(errs, &ValidationError{Field: prefix + ".body.type", Message: fmt.Sprintf("unknown body type %q", d.Body.Type)})
		}
		switch d.Body.MatchType {
		case "", JSONOnlyMatchingFields, JSONStrict:
		default:
			errs = append(errs, &ValidationError{Field: prefix + ".body.matchType", Message: fmt.Sprintf("unknown match type %q", d.Body.MatchType)})
		}
	}
	if !d.PathParameters.IsZero() && d.Path.IsZero() {
		errs = append(errs, &ValidationError{Field: prefix + ".pathParameters", Message: "requires a path with {name} placeholders"})
	}
	for name, m := range map[string]MultiValueMap{
		"headers":               d.Headers,
		"cookies":               d.Cookies,
		"queryStringParameters": d.QueryStringParameters,
		"pathParameters":        d.PathParameters,
	} {
		switch m.KeyMatchStyle {
		case "", KeyMatchSubSet, KeyMatchMatchingKey:
		default:
			errs = append(errs, &ValidationError{Field: prefix + "." + name + ".keyMatchStyle", Message: fmt.Sprintf("unknown key match style %q", m.KeyMatchStyle)})
		}
	}
	if sa := d.SocketAddress; sa != nil {
		if sa.Port < 0 || sa.Port > 65535 {
			errs = append(errs, &ValidationError{Field: prefix + ".socketAddress.port", Message: fmt.Sprintf("must be between 0 and 65535, got %d", sa.Port)})
		}
		switch strings.ToLower(sa.Scheme) {
		case "", "http", "https":
		default:
			errs = append(errs, &ValidationError{Field: prefix + ".socketAddress.scheme", Message: fmt.Sprintf("must be HTTP or HTTPS, got %q", sa.Scheme)})
		}
	}
	return errs
}

func validateDelay(field string, d *Delay) []error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Value < 0 {
		errs = append(errs, &ValidationError{Field: field + ".value", Message: fmt.Sprintf("must not be negative, got %d", d.Value)})
	}
	if d.TimeUnit != "" && !d.TimeUnit.Valid() {
		errs = append(errs, &ValidationError{Field: field + ".timeUnit", Message: fmt.Sprintf("unknown time unit %q", d.TimeUnit)})
	}
	return errs
}
