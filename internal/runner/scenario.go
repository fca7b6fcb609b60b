package runner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/solatis/busprobe/internal/match"
	"github.com/solatis/busprobe/internal/types"
)

// Step kinds, as written in scenario files.
const (
	StepPayloadValues = "payload_values"
	StepPublish       = "publish"
	StepExpect        = "expect"
	StepExpectNone    = "expect_none"
	StepIngest        = "ingest"
)

// Scenario is one test: a named, ordered list of steps.
type Scenario struct {
	Name       string   `yaml:"name"`
	Tags       []string `yaml:"tags"`
	TestCaseID string   `yaml:"test_case_id"`
	Steps      []Step   `yaml:"steps"`

	// File is the source path, set by LoadFile.
	File string `yaml:"-"`
}

// Step is exactly one of its kinds.
type Step struct {
	Kind          string
	PayloadValues Fields
	Publish       *PublishStep
	Expect        *ExpectStep
	Ingest        any // JSON tree
}

// PublishStep builds a payload from a template and publishes it.
type PublishStep struct {
	Template string            `yaml:"template"`
	Subject  string            `yaml:"subject"`
	Headers  map[string]string `yaml:"headers"`
	Fields   Fields            `yaml:"fields"`
}

// ExpectStep awaits one matching message (expect) or none (expect_none).
type ExpectStep struct {
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
	Fields  Fields        `yaml:"fields"`
}

// Fields is a YAML mapping kept in declaration order.
type Fields []match.Field

// UnmarshalYAML decodes a mapping of scalars, preserving key order.
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*f = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	out := make(Fields, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", val.Line, key.Value)
		}
		value := val.Value
		if val.Tag == "!!null" {
			value = ""
		}
		out = append(out, match.Field{Path: key.Value, Value: value})
	}
	*f = out
	return nil
}

// UnmarshalYAML decodes a single-key mapping naming the step kind.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: step must be a mapping with exactly one kind", node.Line)
	}
	kind, body := node.Content[0].Value, node.Content[1]
	s.Kind = kind

	switch kind {
	case StepPayloadValues:
		return body.Decode(&s.PayloadValues)
	case StepPublish:
		s.Publish = &PublishStep{}
		return body.Decode(s.Publish)
	case StepExpect, StepExpectNone:
		s.Expect = &ExpectStep{}
		return body.Decode(s.Expect)
	case StepIngest:
		var v any
		if err := body.Decode(&v); err != nil {
			return err
		}
		tree, err := jsonTree(v)
		if err != nil {
			return fmt.Errorf("line %d: ingest document: %w", body.Line, err)
		}
		s.Ingest = tree
		return nil
	default:
		return fmt.Errorf("line %d: unknown step kind %q", node.Line, kind)
	}
}

// jsonTree re-decodes a YAML value so numbers become json.Number, the same
// shape bus messages have.
func jsonTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return types.DecodeJSON(raw)
}

// Validate checks the structure a run depends on.
func (sc *Scenario) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return errors.New("scenario name is required")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("scenario %q step %d (%s): %w", sc.Name, i+1, step.Kind, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Kind {
	case StepPayloadValues:
		if len(s.PayloadValues) == 0 {
			return errors.New("no values")
		}
	case StepPublish:
		if s.Publish.Template == "" {
			return errors.New("template is required")
		}
	case StepExpect, StepExpectNone:
		if s.Expect.Topic == "" && len(s.Expect.Fields) == 0 {
			return errors.New("topic or fields required")
		}
		if s.Expect.Timeout < 0 {
			return errors.New("timeout must not be negative")
		}
	case StepIngest:
		if s.Ingest == nil {
			return errors.New("document is required")
		}
	}
	return nil
}

// HasAnyTag reports whether the scenario carries one of tags.
// An empty tags list selects every scenario.
func (sc *Scenario) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if slices.Contains(sc.Tags, t) {
			return true
		}
	}
	return false
}

// Parse decodes every YAML document in r as a scenario.
func Parse(r io.Reader) ([]*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out []*Scenario
	for {
		var sc Scenario
		if err := dec.Decode(&sc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid scenario YAML: %w", err)
		}
		if sc.Name == "" && len(sc.Steps) == 0 {
			continue
		}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		out = append(out, &sc)
	}
	return out, nil
}

// LoadFile reads a scenario file.
func LoadFile(path string) ([]*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error loading scenario file: %w", err)
	}
	scenarios, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	for _, sc := range scenarios {
		sc.File = path
	}
	return scenarios, nil
}

// LoadFiles reads scenario files in order and keeps scenarios matching tags.
func LoadFiles(paths []string, tags []string) ([]*Scenario, error) {
	var out []*Scenario
	for _, p := range paths {
		scenarios, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, sc := range scenarios {
			if sc.HasAnyTag(tags) {
				out = append(out, sc)
			}
		}
	}
	return out, nil
}
