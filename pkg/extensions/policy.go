// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Action is what PolicyFilter does with a match.
type Action string

const (
	ActionRedact Action = "redact"
	ActionBlock  Action = "block"
)

// UnmarshalYAML rejects unknown actions.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch Action(s) {
	case ActionRedact, ActionBlock:
		*a = Action(s)
		return nil
	default:
		return fmt.Errorf("invalid value for action: %q", s)
	}
}

// PolicyFile is the YAML layout of a message policy.
type PolicyFile struct {
	Classifications []Classification `yaml:"classifications"`
}

// Classification groups patterns that share an action.
type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Action      Action    `yaml:"action"`
	Patterns    []Pattern `yaml:"patterns"`
}

// Pattern is one regular expression in a classification.
type Pattern struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`

	compiled *regexp.Regexp
}

// PolicyFilter redacts or blocks messages that match a policy.
//
// # Description
//
// Classifications are checked from highest to lowest priority. A match in
// a "block" classification refuses the turn. Matches in "redact"
// classifications are replaced by "[REDACTED:<pattern id>]" and the turn
// continues with the redacted message.
//
// # Thread Safety
//
// PolicyFilter is immutable after construction and safe for concurrent use.
type PolicyFilter struct {
	classifications []Classification
}

// NewPolicyFilter compiles the built-in policy.
func NewPolicyFilter() (*PolicyFilter, error) {
	return ParsePolicy(defaultPolicy)
}

// LoadPolicy compiles the policy at path.
func LoadPolicy(path string) (*PolicyFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy compiles a YAML policy.
func ParsePolicy(data []byte) (*PolicyFilter, error) {
	var f PolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the policy file: %w", err)
	}
	for i := range f.Classifications {
		c := &f.Classifications[i]
		if c.Action == "" {
			c.Action = ActionRedact
		}
		for j := range c.Patterns {
			p := &c.Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile the regex %s: %w", p.ID, err)
			}
			p.compiled = re
		}
	}
	sort.SliceStable(f.Classifications, func(i, j int) bool {
		return f.Classifications[i].Priority > f.Classifications[j].Priority
	})
	return &PolicyFilter{classifications: f.Classifications}, nil
}

// FilterInput implements MessageFilter.
func (f *PolicyFilter) FilterInput(_ context.Context, message string) (*FilterResult, error) {
	res := &FilterResult{Filtered: message}
	for _, c := range f.classifications {
		for _, p := range c.Patterns {
			if !p.compiled.MatchString(res.Filtered) {
				continue
			}
			res.Detections = append(res.Detections, Detection{
				Classification: c.Name,
				PatternID:      p.ID,
				Action:         c.Action,
			})
			if c.Action == ActionBlock {
				res.WasBlocked = true
				res.BlockReason = fmt.Sprintf("message contains %s data (%s)", c.Name, p.ID)
				res.Filtered = ""
				return res, nil
			}
			res.Filtered = p.compiled.ReplaceAllLiteralString(res.Filtered, "[REDACTED:"+p.ID+"]")
			res.WasModified = true
		}
	}
	return res, nil
}

var _ MessageFilter = (*PolicyFilter)(nil)
