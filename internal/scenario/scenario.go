// Package scenario replays YAML-described sequences of registry operations
// and records what every subscribed listener saw.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/svcreg/internal/events"
)

// Scenario is a named list of steps.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one operation.
type Step struct {
	Subscribe   *SubscribeStep   `yaml:"subscribe,omitempty"`
	Unsubscribe *UnsubscribeStep `yaml:"unsubscribe,omitempty"`
	Register    *RegisterStep    `yaml:"register,omitempty"`
	Update      *UpdateStep      `yaml:"update,omitempty"`
	Unregister  *UnregisterStep  `yaml:"unregister,omitempty"`
	Lookup      *LookupStep      `yaml:"lookup,omitempty"`
}

// SubscribeStep adds a listener named ID. Expect, when set, lists the event
// kinds the listener must have received by the end of the run. A listener
// with Fail set returns an error from every delivery.
type SubscribeStep struct {
	ID     string   `yaml:"id"`
	Filter string   `yaml:"filter,omitempty"`
	Fail   bool     `yaml:"fail,omitempty"`
	Expect []string `yaml:"expect,omitempty"`
}

// UnsubscribeStep removes the listener named ID.
type UnsubscribeStep struct {
	ID string `yaml:"id"`
}

// RegisterStep registers a service named ID.
type RegisterStep struct {
	ID          string         `yaml:"id"`
	Types       []string       `yaml:"types"`
	Properties  map[string]any `yaml:"properties,omitempty"`
	Owner       string         `yaml:"owner,omitempty"`
	ExpectError bool           `yaml:"expect_error,omitempty"`
}

// UpdateStep replaces the properties of the service named ID.
type UpdateStep struct {
	ID          string         `yaml:"id"`
	Properties  map[string]any `yaml:"properties,omitempty"`
	ExpectError bool           `yaml:"expect_error,omitempty"`
}

// UnregisterStep removes the service named ID.
type UnregisterStep struct {
	ID          string `yaml:"id"`
	ExpectError bool   `yaml:"expect_error,omitempty"`
}

// LookupStep queries the registry. Expect, when non-nil, lists the service
// names in the expected order; an empty list expects no match.
type LookupStep struct {
	Type        string    `yaml:"type,omitempty"`
	Filter      string    `yaml:"filter,omitempty"`
	Expect      *[]string `yaml:"expect,omitempty"`
	ExpectError bool      `yaml:"expect_error,omitempty"`
}

// Op names the operation a step holds.
func (s Step) Op() string {
	switch {
	case s.Subscribe != nil:
		return "subscribe"
	case s.Unsubscribe != nil:
		return "unsubscribe"
	case s.Register != nil:
		return "register"
	case s.Update != nil:
		return "update"
	case s.Unregister != nil:
		return "unregister"
	case s.Lookup != nil:
		return "lookup"
	default:
		return ""
	}
}

func (s Step) count() int {
	n := 0
	for _, set := range []bool{
		s.Subscribe != nil, s.Unsubscribe != nil, s.Register != nil,
		s.Update != nil, s.Unregister != nil, s.Lookup != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// ErrInvalidScenario is returned for structurally invalid scenario files.
var ErrInvalidScenario = errors.New("invalid scenario")

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads and parses the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Validate checks that every step holds one operation with the names it
// needs, and that expected event kinds are spelled correctly.
func (sc *Scenario) Validate() error {
	for i, step := range sc.Steps {
		if n := step.count(); n != 1 {
			return fmt.Errorf("%w: step %d has %d operations, want 1", ErrInvalidScenario, i+1, n)
		}
		var id string
		switch {
		case step.Subscribe != nil:
			id = step.Subscribe.ID
			for _, k := range step.Subscribe.Expect {
				if _, ok := events.ParseKind(k); !ok {
					return fmt.Errorf("%w: step %d: unknown event kind %q", ErrInvalidScenario, i+1, k)
				}
			}
		case step.Unsubscribe != nil:
			id = step.Unsubscribe.ID
		case step.Register != nil:
			id = step.Register.ID
		case step.Update != nil:
			id = step.Update.ID
		case step.Unregister != nil:
			id = step.Unregister.ID
		case step.Lookup != nil:
			continue
		}
		if id == "" {
			return fmt.Errorf("%w: step %d (%s): id is required", ErrInvalidScenario, i+1, step.Op())
		}
	}
	return nil
}
