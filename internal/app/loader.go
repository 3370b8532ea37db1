package app

import (
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evals/internal/scenario"
)

// LoadScenarios loads every scenario file in a directory.
func LoadScenarios(dir string) ([]scenario.Scenario, error) {
	return scenario.LoadFromDir(dir)
}

// FilterScenarios narrows a loaded set by dataset key, tag, and explicit ids.
// Empty selectors match everything.
func FilterScenarios(scenarios []scenario.Scenario, datasetKey, tag string, ids []string) []scenario.Scenario {
	datasetKey = strings.TrimSpace(datasetKey)
	tag = strings.TrimSpace(tag)

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			idSet[id] = struct{}{}
		}
	}

	out := make([]scenario.Scenario, 0, len(scenarios))
	for i := range scenarios {
		sc := scenarios[i]
		if datasetKey != "" && sc.DatasetKey != datasetKey {
			continue
		}
		if tag != "" && !sc.HasTag(tag) {
			continue
		}
		if len(idSet) > 0 {
			if _, ok := idSet[sc.ID]; !ok {
				continue
			}
		}
		out = append(out, sc)
	}
	return out
}

// FindScenario resolves one scenario by business key ("dataset/id").
func FindScenario(scenarios []scenario.Scenario, key string) (*scenario.Scenario, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("app: missing scenario key")
	}
	for i := range scenarios {
		if scenarios[i].Key() == key {
			return &scenarios[i], nil
		}
	}
	return nil, fmt.Errorf("app: unknown scenario %q", key)
}
