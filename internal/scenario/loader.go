package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/agent-evals/internal/state"
)

// File is one scenario YAML file: a dataset key plus its scenarios, with
// optional limits defaults.
type File struct {
	DatasetKey string     `yaml:"dataset_key"`
	Limits     *RunLimits `yaml:"limits,omitempty"`
	Scenarios  []Scenario `yaml:"scenarios"`
}

// LoadFromFile loads and validates one scenario file.
func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}

	for i := range f.Scenarios {
		if strings.TrimSpace(f.Scenarios[i].DatasetKey) == "" {
			f.Scenarios[i].DatasetKey = f.DatasetKey
		}
	}
	if err := Validate(f.Scenarios); err != nil {
		return nil, fmt.Errorf("scenario: validate %q: %w", path, err)
	}
	return &f, nil
}

// LoadFromDir loads every scenario YAML file in a directory, in name order.
func LoadFromDir(dir string) ([]Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario: read dir %q: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	var out []Scenario
	for _, path := range paths {
		f, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, f.Scenarios...)
	}
	if err := Validate(out); err != nil {
		return nil, fmt.Errorf("scenario: validate dir %q: %w", dir, err)
	}
	return out, nil
}

// Validate checks scenarios for consistency and duplicate business keys.
func Validate(scenarios []Scenario) error {
	seen := make(map[string]struct{}, len(scenarios))
	for i := range scenarios {
		sc := &scenarios[i]
		if strings.TrimSpace(sc.DatasetKey) == "" {
			return fmt.Errorf("scenarios[%d]: missing dataset_key", i)
		}
		if strings.TrimSpace(sc.ID) == "" {
			return fmt.Errorf("scenarios[%d]: missing id", i)
		}
		key := sc.Key()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("scenarios[%d]: duplicate key %q", i, key)
		}
		seen[key] = struct{}{}

		if len(sc.Steps) == 0 && strings.TrimSpace(sc.Persona) == "" && sc.Channel != ChannelMessaging {
			return fmt.Errorf("scenario %q: needs steps or a persona", key)
		}
		switch sc.Channel {
		case "", ChannelDirect, ChannelMessaging:
		default:
			return fmt.Errorf("scenario %q: unknown channel %q", key, sc.Channel)
		}
		for j, p := range setupPreseed(sc.Setup) {
			if strings.TrimSpace(p.Title) == "" {
				return fmt.Errorf("scenario %q: preseed_actions[%d]: missing title", key, j)
			}
			switch p.Kind {
			case "", state.KindHabit, state.KindOneShot:
			default:
				return fmt.Errorf("scenario %q: preseed_actions[%d]: unknown kind %q", key, j, p.Kind)
			}
			switch p.Status {
			case "", state.StatusActive, state.StatusPending:
			default:
				return fmt.Errorf("scenario %q: preseed_actions[%d]: unknown status %q", key, j, p.Status)
			}
		}
	}
	return nil
}

func setupPreseed(s *Setup) []PreseedAction {
	if s == nil {
		return nil
	}
	return s.PreseedActions
}
