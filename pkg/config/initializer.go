package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/mock-server/mockserver-sub017/internal/id"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// SplitPatterns splits a comma-separated initialization path.
func SplitPatterns(path string) []string {
	var out []string
	for p := range strings.SplitSeq(path, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpandInitializationPath resolves every glob in the comma-separated path
// and returns the matching files sorted and without duplicates. A pattern
// without glob characters names a file that must exist.
func ExpandInitializationPath(path string) ([]string, error) {
	var files []string
	for _, pattern := range SplitPatterns(path) {
		if !hasMeta(pattern) {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, pattern)
			}
			files = append(files, filepath.Clean(pattern))
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// LoadExpectations reads every file named by the initialization path, in
// sorted file order. Expectations without an ID get one derived from their
// file and position, so reloading an unchanged file yields the same IDs.
func LoadExpectations(path string) ([]*expectation.Expectation, error) {
	files, err := ExpandInitializationPath(path)
	if err != nil {
		return nil, err
	}
	var out []*expectation.Expectation
	for _, file := range files {
		es, err := ReadExpectationFile(file)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		for i, e := range es {
			if e != nil && e.ID == "" {
				e.ID = id.Stable(fmt.Sprintf("%s#%d", abs, i))
			}
		}
		out = append(out, es...)
	}
	return out, nil
}

// ReadExpectationFile reads one expectation document or an array of them.
func ReadExpectationFile(path string) ([]*expectation.Expectation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if isYAML(path) {
		es, err := parseYAMLExpectations(data)
		if err != nil {
			return nil, fmt.Errorf("%w in %s: %w", ErrInvalidYAML, path, err)
		}
		return es, nil
	}
	es, err := expectation.ParseExpectations(data)
	if err != nil {
		return nil, fmt.Errorf("%w in %s: %w", ErrInvalidJSON, path, err)
	}
	return es, nil
}

func parseYAMLExpectations(data []byte) ([]*expectation.Expectation, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var out []*expectation.Expectation
		if err := root.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var single expectation.Expectation
	if err := root.Decode(&single); err != nil {
		return nil, err
	}
	return []*expectation.Expectation{&single}, nil
}

// SaveExpectations writes expectations to path as a JSON or YAML array using
// an atomic rename. Parent directories are created as needed.
func SaveExpectations(path string, es []*expectation.Expectation) error {
	if es == nil {
		es = []*expectation.Expectation{}
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(es)
	} else {
		data, err = json.MarshalIndent(es, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal expectations: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
