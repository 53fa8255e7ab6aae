package status

import (
	"errors"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"
)

var ErrStatusNotFound = errors.New("status not found")

const (
	BlockStart = "[Trigger Start]"
	BlockEnd   = "[Trigger End]"
)

// Result is the outcome of one evaluation pass. Triggers and Statuses are fresh copies;
// the inputs given to Evaluate are never modified.
type Result struct {
	InstructionText string
	Triggers        []Trigger
	Statuses        Statuses
	// Fired holds the ids of the triggers that fired, in evaluation order.
	Fired []string
}

// Evaluate runs every trigger once, in order, against the statuses.
//
// Status updates made by a fired trigger are visible to the triggers evaluated after it.
// The response texts of the fired triggers are joined into a single instruction block.
// With no triggers, or no statuses at all, the inputs are returned unchanged.
func Evaluate(triggers []Trigger, statuses Statuses) Result {
	if len(triggers) == 0 || statuses == nil {
		return Result{Triggers: triggers, Statuses: statuses}
	}

	ts := clone.Clone(triggers).([]Trigger)
	ss := clone.Clone(statuses).(Statuses)

	var texts []string
	var fired []string
	for i := range ts {
		t := &ts[i]
		met := t.conditionsMet(ss)

		fire := false
		switch t.ExecutionType {
		case ExecutePersistent:
			fire = met
		case ExecuteOnce:
			fire = met && !t.HasBeenExecuted
		case ExecuteOnThresholdCross:
			fire = met && !t.LastEvaluationResult
		}

		if fire {
			if t.ResponseText != "" {
				texts = append(texts, t.ResponseText)
			}
			for _, u := range t.StatusUpdates {
				applyUpdate(ss, u)
			}
			if t.ExecutionType == ExecuteOnce {
				t.HasBeenExecuted = true
			}
			fired = append(fired, t.ID)
			log.Debug().Str("trigger", t.ID).Str("name", t.Name).Str("type", string(t.ExecutionType)).Msg("trigger fired")
		}
		t.LastEvaluationResult = met
	}

	return Result{
		InstructionText: formatBlock(texts),
		Triggers:        ts,
		Statuses:        ss,
		Fired:           fired,
	}
}

// conditionsMet folds the conditions left to right. A missing conjunction joins with OR.
// A trigger without conditions never fires.
func (t *Trigger) conditionsMet(ss Statuses) bool {
	if len(t.Conditions) == 0 {
		return false
	}
	result := evalCondition(t.Conditions[0], ss)
	for i := 1; i < len(t.Conditions); i++ {
		next := evalCondition(t.Conditions[i], ss)
		conj := Or
		if i-1 < len(t.Conjunctions) {
			conj = t.Conjunctions[i-1]
		}
		if conj == And {
			result = result && next
		} else {
			result = result || next
		}
	}
	return result
}

func evalCondition(c Condition, ss Statuses) bool {
	s, ok := ss.Find(c.StatusID)
	if !ok {
		return false
	}
	v, ok := s.Number()
	if !ok {
		return false
	}
	return c.Operator.Compare(v, c.Value)
}

func applyUpdate(ss Statuses, u StatusUpdate) {
	s, ok := ss.Find(u.TargetStatusID)
	if !ok {
		log.Debug().Str("status", u.TargetStatusID).Msg("trigger update targets unknown status")
		return
	}
	current, _ := s.Number()
	switch u.Operation {
	case OpSet:
		current = u.Value
	case OpAdd:
		current += u.Value
	case OpSubtract:
		current -= u.Value
	default:
		return
	}
	s.CurrentValue = formatNumber(current)
}

func formatBlock(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	return BlockStart + "\n" + strings.Join(texts, "\n") + "\n" + BlockEnd
}
