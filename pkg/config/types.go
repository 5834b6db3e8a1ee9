package config

import (
	"fmt"

	"github.com/stepwire/stepwire/pkg/step"
)

// Settings is the collection-level configuration shared by every step.
type Settings struct {
	// Name labels the collection in reports.
	Name string `json:"name" yaml:"name"`

	// BaseURL is prepended to relative step URLs.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Variables seed the session bindings.
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Collection is one loadable test file: shared settings plus the ordered
// steps to run.
type Collection struct {
	Config Settings          `json:"config" yaml:"config"`
	Steps  []step.Descriptor `json:"steps" yaml:"steps"`
}

// Validate checks every step's caller contract before the run starts.
func (c *Collection) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("collection has no steps")
	}
	for i := range c.Steps {
		if err := c.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}
