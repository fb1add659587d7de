package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/mock-server/mockserver-sub017/pkg/engine/api"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// filterFlags selects expectations or recorded requests by ID or by a
// request pattern given inline or in a file.
type filterFlags struct {
	id     string
	method string
	path   string
	file   string
}

func (f *filterFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.id, "id", "", "Expectation ID")
	fs.StringVar(&f.method, "method", "", "Request method pattern")
	fs.StringVar(&f.path, "path", "", "Request path pattern (regex allowed)")
	fs.StringVarP(&f.file, "file", "f", "", "JSON file holding a request pattern or {\"id\": ...}")
}

// build returns the filter, or nil when no flag was given.
func (f *filterFlags) build() (*api.Filter, error) {
	inline := f.method != "" || f.path != ""
	set := 0
	for _, given := range []bool{f.id != "", inline, f.file != ""} {
		if given {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("use only one of --id, --file or --method/--path")
	}

	switch {
	case f.id != "":
		return &api.Filter{ExpectationID: f.id}, nil
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("reading filter: %w", err)
		}
		return api.ParseFilter(data)
	case inline:
		return &api.Filter{Pattern: expectation.Request(f.method, f.path)}, nil
	default:
		return nil, nil
	}
}
