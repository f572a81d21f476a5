package rule

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a rule definition file.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadMode controls how errors are handled during definition loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first invalid rule.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll validates every rule and reports all failures.
	LoadModeCollectAll
)

// LoadFile reads rule definitions from a YAML file.
//
// Each rule gets defaults applied (debounce window) and is validated against
// the per-kind CUE schemas. Duplicate rule IDs are rejected regardless of
// mode.
func LoadFile(path string, mode LoadMode) ([]Rule, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read rule file: %w", err)}
	}
	return Parse(data, mode)
}

// Parse decodes and validates rule definitions from YAML bytes.
func Parse(data []byte, mode LoadMode) ([]Rule, []error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, []error{fmt.Errorf("decode rule definitions: %w", err)}
	}

	var errs []error
	seen := make(map[string]bool, len(file.Rules))
	rules := make([]Rule, 0, len(file.Rules))

	for i := range file.Rules {
		r := file.Rules[i]
		if r.DebounceMinutes == 0 {
			r.DebounceMinutes = DefaultDebounceMinutes
		}

		if r.ID != "" && seen[r.ID] {
			errs = append(errs, fmt.Errorf("rule %d: duplicate rule ID %q", i, r.ID))
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}

		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, r.ID, err))
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}

		seen[r.ID] = true
		rules = append(rules, r)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return rules, nil
}
