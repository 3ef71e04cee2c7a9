package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/mqtt-notify/internal/rules"
)

// Action kinds accepted in the `kind` field of an action.
const (
	KindEquals    = "equals"
	KindNotEquals = "not_equals"
)

// MappingConfig is the on-disk form of a topic mapping.
//
// Older configuration files use a single `action`; newer ones use an
// `actions` list. Either is accepted, but not both in the same mapping.
type MappingConfig struct {
	Topic   string         `yaml:"topic" toml:"topic"`
	Action  *ActionConfig  `yaml:"action,omitempty" toml:"action,omitempty"`
	Actions []ActionConfig `yaml:"actions,omitempty" toml:"actions,omitempty"`
}

// ActionConfig is the on-disk form of a single action.
//
// Two spellings are accepted:
//
//	- OnValueEqSay: {value: "open", say: "Door opened!"}
//	- {kind: not_equals, value: "ok", say: "Pump fault"}
type ActionConfig struct {
	Kind  string `yaml:"kind,omitempty" toml:"kind,omitempty"`
	Value string `yaml:"value,omitempty" toml:"value,omitempty"`
	Say   string `yaml:"say,omitempty" toml:"say,omitempty"`

	OnValueEqSay *ActionBody `yaml:"OnValueEqSay,omitempty" toml:"OnValueEqSay,omitempty"`
	OnValueNeSay *ActionBody `yaml:"OnValueNeSay,omitempty" toml:"OnValueNeSay,omitempty"`
}

// ActionBody holds the comparison value and response of a tagged action.
type ActionBody struct {
	Value string `yaml:"value" toml:"value"`
	Say   string `yaml:"say" toml:"say"`
}

// buildRules converts mapping configs into rules, normalising single actions
// to the list form. Every problem found is reported.
func buildRules(mappings []MappingConfig) ([]rules.Mapping, error) {
	out := make([]rules.Mapping, 0, len(mappings))
	var errs []error

	for i, m := range mappings {
		mapping, err := m.toMapping()
		if err != nil {
			errs = append(errs, fmt.Errorf("mappings[%d]: %w", i, err))
			continue
		}
		out = append(out, mapping)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// toMapping normalises a MappingConfig into a rules.Mapping.
func (m MappingConfig) toMapping() (rules.Mapping, error) {
	if m.Topic == "" {
		return rules.Mapping{}, errors.New("topic is required")
	}
	if m.Action != nil && len(m.Actions) > 0 {
		return rules.Mapping{}, fmt.Errorf("topic %q: set either action or actions, not both", m.Topic)
	}

	raw := m.Actions
	if m.Action != nil {
		raw = []ActionConfig{*m.Action}
	}

	actions := make([]rules.Action, 0, len(raw))
	for j, a := range raw {
		action, err := a.toAction()
		if err != nil {
			return rules.Mapping{}, fmt.Errorf("topic %q: actions[%d]: %w", m.Topic, j, err)
		}
		actions = append(actions, action)
	}

	return rules.Mapping{Topic: m.Topic, Actions: actions}, nil
}

// toAction resolves whichever spelling of the action was used.
func (a ActionConfig) toAction() (rules.Action, error) {
	forms := 0
	if a.Kind != "" {
		forms++
	}
	if a.OnValueEqSay != nil {
		forms++
	}
	if a.OnValueNeSay != nil {
		forms++
	}
	if forms != 1 {
		return nil, errors.New("exactly one of kind, OnValueEqSay or OnValueNeSay must be set")
	}

	switch {
	case a.OnValueEqSay != nil:
		return rules.EqualsSay{Value: a.OnValueEqSay.Value, Say: a.OnValueEqSay.Say}, nil
	case a.OnValueNeSay != nil:
		return rules.NotEqualsSay{Value: a.OnValueNeSay.Value, Say: a.OnValueNeSay.Say}, nil
	}

	switch normaliseKind(a.Kind) {
	case KindEquals:
		return rules.EqualsSay{Value: a.Value, Say: a.Say}, nil
	case KindNotEquals:
		return rules.NotEqualsSay{Value: a.Value, Say: a.Say}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// normaliseKind maps the accepted kind spellings onto KindEquals/KindNotEquals.
func normaliseKind(kind string) string {
	switch strings.ToLower(kind) {
	case "equals", "eq", "equalssay", "onvalueeqsay":
		return KindEquals
	case "not_equals", "ne", "notequalssay", "onvaluenesay":
		return KindNotEquals
	default:
		return kind
	}
}
