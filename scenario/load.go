package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a scenario file. JSON files parse as YAML.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML or JSON scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultWeb is the scenario used for the web target when none is configured.
func DefaultWeb() *Scenario {
	return &Scenario{
		Name: "default-web",
		Actions: []Action{
			{
				Name:       "home-screen",
				Kind:       KindWait,
				Duration:   2000,
				Screenshot: &CaptureOptions{FullPage: true},
			},
			{
				Name:       "navigation-interaction",
				Kind:       KindClick,
				Selector:   "body",
				Screenshot: &CaptureOptions{FullPage: true},
			},
			{
				Name:       "app-loaded",
				Kind:       KindWait,
				Duration:   3000,
				Screenshot: &CaptureOptions{FullPage: true},
			},
		},
	}
}
