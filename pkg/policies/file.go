package policies

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// File is the on-disk policy document
//
//	policies:
//	  - name: guest
//	    fields:
//	      - {name: email, comparison: exact_normalized, weight: 0.7, normalizer: email}
//	    identity_sets: [[email]]
//	    thresholds: {potential: 0.4}
type File struct {
	Policies []matching.Policy `yaml:"policies" validate:"required,min=1,dive"`
}

// Parse decodes and validates a policy document. Structural problems are reported
// as configuration errors; field-level rules are checked again when an engine is built.
func Parse(data []byte) ([]matching.Policy, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, matching.NewConfigurationErrorf("", "failed to parse policy file: %v", err)
	}
	if _, err := utils.Validate(file); err != nil {
		return nil, matching.NewConfigurationErrorf("", "%v", err)
	}

	seen := map[string]bool{}
	for _, p := range file.Policies {
		if seen[p.Name] {
			return nil, matching.NewConfigurationErrorf("name", "policy declared more than once").AddPolicy(p.Name)
		}
		seen[p.Name] = true
	}
	return file.Policies, nil
}

// LoadFile reads a policy document from disk
func LoadFile(path string) ([]matching.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	return Parse(data)
}

// Merge overlays policies onto base by name. Overrides replace a base policy in
// place; new names are appended in their declared order.
func Merge(base []matching.Policy, overrides []matching.Policy) []matching.Policy {
	out := append([]matching.Policy(nil), base...)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.Name] = i
	}
	for _, p := range overrides {
		if i, ok := index[p.Name]; ok {
			out[i] = p
			continue
		}
		index[p.Name] = len(out)
		out = append(out, p)
	}
	return out
}
