package matching

import (
	"fmt"
	"strings"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"golang.org/x/text/encoding/htmlindex"
)

// Options are the server-wide settings that influence how patterns are
// compiled.
type Options struct {
	// DefaultCharset decodes bodies whose Content-Type carries no charset.
	DefaultCharset string

	// JSONMatchType applies to JSON body patterns that do not set one.
	JSONMatchType expectation.JSONMatchType
}

// DefaultOptions returns UTF-8 and subset JSON matching.
func DefaultOptions() Options {
	return Options{
		DefaultCharset: "utf-8",
		JSONMatchType:  expectation.JSONOnlyMatchingFields,
	}
}

// Validate checks that the charset is known and the match type is valid.
func (o Options) Validate() error {
	if o.DefaultCharset != "" {
		if _, err := htmlindex.Get(o.DefaultCharset); err != nil {
			return fmt.Errorf("unknown charset %q: %w", o.DefaultCharset, err)
		}
	}
	switch expectation.JSONMatchType(strings.ToUpper(string(o.JSONMatchType))) {
	case "", expectation.JSONOnlyMatchingFields, expectation.JSONStrict:
		return nil
	default:
		return fmt.Errorf("unknown JSON match type %q", o.JSONMatchType)
	}
}

func (o Options) strictJSON(b *expectation.Body) bool {
	mt := b.MatchType
	if mt == "" {
		mt = expectation.JSONMatchType(strings.ToUpper(string(o.JSONMatchType)))
	}
	return mt == expectation.JSONStrict
}
