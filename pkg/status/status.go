package status

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type UpdateMode string

const (
	UpdateModeAccumulate UpdateMode = "accumulate"
	UpdateModeOverwrite  UpdateMode = "overwrite"
)

// Status is a named value attached to a session. Values are stored as text and interpreted
// as numbers wherever a comparison or arithmetic needs one.
type Status struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	CurrentValue string     `json:"currentValue" yaml:"currentValue"`
	Visible      bool       `json:"isVisible" yaml:"visible"`
	Mode         UpdateMode `json:"updateMode,omitempty" yaml:"mode,omitempty"`
}

// Number parses the current value. ok is false for free text.
func (s *Status) Number() (float64, bool) {
	return parseNumber(s.CurrentValue)
}

// Update applies a manual change. Accumulating statuses add numeric input to their numeric
// value; everything else replaces the value.
func (s *Status) Update(value string) {
	if s.Mode == UpdateModeAccumulate {
		delta, okDelta := parseNumber(value)
		current, okCurrent := s.Number()
		if okDelta && okCurrent {
			s.CurrentValue = formatNumber(current + delta)
			return
		}
	}
	s.CurrentValue = value
}

type Statuses []Status

func (ss Statuses) Find(id string) (*Status, bool) {
	for i := range ss {
		if ss[i].ID == id {
			return &ss[i], true
		}
	}
	return nil, false
}

// Values maps status names to their current values.
func (ss Statuses) Values() map[string]string {
	ret := make(map[string]string, len(ss))
	for _, s := range ss {
		ret[s.Name] = s.CurrentValue
	}
	return ret
}

func (ss Statuses) Update(id string, value string) error {
	s, ok := ss.Find(id)
	if !ok {
		return errors.Wrapf(ErrStatusNotFound, "status %q", id)
	}
	s.Update(value)
	return nil
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseNumber reads the longest decimal prefix of s after leading whitespace, so "80 HP"
// and "50%" are numbers. ok is false when s does not start with one.
func parseNumber(s string) (float64, bool) {
	m := leadingNumber.FindString(strings.TrimLeft(s, " \t\n\r\f\v"))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type Operator string

const (
	OpEqual        Operator = "=="
	OpGreaterEqual Operator = ">="
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpLess         Operator = "<"
)

func (o Operator) Compare(a, b float64) bool {
	switch o {
	case OpEqual:
		return a == b
	case OpGreaterEqual:
		return a >= b
	case OpGreater:
		return a > b
	case OpLessEqual:
		return a <= b
	case OpLess:
		return a < b
	}
	return false
}

func (o *Operator) UnmarshalText(text []byte) error {
	switch op := Operator(text); op {
	case OpEqual, OpGreaterEqual, OpGreater, OpLessEqual, OpLess:
		*o = op
		return nil
	}
	return fmt.Errorf("unknown operator %q", string(text))
}

type Conjunction string

const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

func (c *Conjunction) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "AND":
		*c = And
	case "OR":
		*c = Or
	default:
		return fmt.Errorf("unknown conjunction %q", string(text))
	}
	return nil
}

type ExecutionType string

const (
	// ExecuteOnce fires the first time the conditions hold and never again.
	ExecuteOnce ExecutionType = "once"
	// ExecutePersistent fires on every evaluation where the conditions hold.
	ExecutePersistent ExecutionType = "persistent"
	// ExecuteOnThresholdCross fires only when the conditions go from false to true.
	ExecuteOnThresholdCross ExecutionType = "on-threshold-cross"
)

type Operation string

const (
	OpSet      Operation = "set"
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
)

func (o *Operation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "set":
		*o = OpSet
	case "add":
		*o = OpAdd
	case "subtract", "sub":
		*o = OpSubtract
	default:
		return fmt.Errorf("unknown status operation %q", string(text))
	}
	return nil
}

type Condition struct {
	StatusID string   `json:"statusId" yaml:"statusId"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    float64  `json:"value" yaml:"value"`
}

type StatusUpdate struct {
	TargetStatusID string    `json:"targetStatusId" yaml:"targetStatusId"`
	Operation      Operation `json:"operation" yaml:"operation"`
	Value          float64   `json:"value" yaml:"value"`
}

type Trigger struct {
	ID                   string         `json:"id" yaml:"id"`
	Name                 string         `json:"name,omitempty" yaml:"name,omitempty"`
	Conditions           []Condition    `json:"conditions" yaml:"conditions"`
	Conjunctions         []Conjunction  `json:"conjunctions" yaml:"conjunctions"`
	ExecutionType        ExecutionType  `json:"executionType" yaml:"executionType"`
	ResponseText         string         `json:"responseText" yaml:"responseText"`
	StatusUpdates        []StatusUpdate `json:"statusUpdates,omitempty" yaml:"statusUpdates,omitempty"`
	HasBeenExecuted      bool           `json:"hasBeenExecuted" yaml:"hasBeenExecuted"`
	LastEvaluationResult bool           `json:"lastEvaluationResult" yaml:"lastEvaluationResult"`
}
