// Package testkit drives the HTTP API from JSON flow files.
//
// A flow is an ordered list of steps sharing one cookie jar, so a login
// step is seen by the cart steps after it:
//
//	{
//	  "name": "student checks out",
//	  "steps": [
//	    {"method": "POST", "url": "/api/auth/login",
//	     "body": {"email": "awa@uvci.edu.ci", "password": "secret1"},
//	     "status": 200,
//	     "capture": {"token": "data.token"}},
//	    {"method": "GET", "url": "/api/cart",
//	     "headers": {"Authorization": "Bearer {{token}}"},
//	     "expect": {"data.item_count": 0}}
//	  ]
//	}
//
// Expectations address the response JSON with dotted paths; a trailing "#"
// is the length of an array ("data.items.#").
package testkit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Flow is one JSON flow file.
type Flow struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Step is one request and what its response must contain.
type Step struct {
	Name    string            `json:"name"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers"`

	Status  int               `json:"status"`
	Expect  map[string]any    `json:"expect"`
	Absent  []string          `json:"absent"`
	Capture map[string]string `json:"capture"`
}

// Label names the step in subtest output.
func (s Step) Label(i int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%02d %s %s", i, s.Method, s.URL)
}

// LoadFlow reads and validates a flow file.
func LoadFlow(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testkit: read %q: %w", path, err)
	}
	var f Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("testkit: parse %q: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("testkit: invalid flow %q: %w", path, err)
	}
	return &f, nil
}

func (f *Flow) validate() error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i := range f.Steps {
		s := &f.Steps[i]
		if s.URL == "" {
			return fmt.Errorf("steps[%d].url is required", i)
		}
		if s.Method == "" {
			s.Method = "GET"
		}
		if s.Status == 0 {
			s.Status = 200
		}
	}
	return nil
}

// LoadDir loads every *.json flow in dir, sorted by file name.
func LoadDir(dir string) ([]*Flow, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("testkit: no flow files in %q", dir)
	}
	sort.Strings(paths)
	flows := make([]*Flow, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFlow(p)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, nil
}
