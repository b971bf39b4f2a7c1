// Package rulemap maps scanner rule identifiers to the compliance controls
// they evidence. The table is a versioned configuration artifact loaded at
// process start; updating it is a deployment, not a runtime mutation.
package rulemap

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// Map is an immutable lookup from scanner rule ID to control IDs.
type Map struct {
	version string
	rules   map[string][]string
}

type ruleFile struct {
	Version string              `yaml:"version"`
	Rules   map[string][]string `yaml:"rules"`
}

// Load parses the embedded rule table.
func Load() (*Map, error) {
	return parse(embeddedRules)
}

// FromFile loads a rule table from disk, overriding the embedded one.
func FromFile(path string) (*Map, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("reading rule map: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Map, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rule map: %w", err)
	}
	if rf.Version == "" {
		return nil, fmt.Errorf("rule map missing version")
	}

	rules := make(map[string][]string, len(rf.Rules))
	for ruleID, controls := range rf.Rules {
		rules[ruleID] = append([]string(nil), controls...)
	}

	return &Map{version: rf.Version, rules: rules}, nil
}

// Version returns the rule table's version string.
func (m *Map) Version() string {
	return m.version
}

// ControlsForRule returns the control IDs evidenced by a rule. Unknown rules
// return an empty slice, never an error: new scanner rules may appear before
// the table learns about them, and that is a silent no-op.
func (m *Map) ControlsForRule(ruleID string) []string {
	controls, ok := m.rules[ruleID]
	if !ok {
		return []string{}
	}
	out := make([]string, len(controls))
	copy(out, controls)
	return out
}

// Size returns the number of mapped rules.
func (m *Map) Size() int {
	return len(m.rules)
}
