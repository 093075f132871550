package wizard

import (
	"strings"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/quoting"
)

// AnswerKind tags the variant carried by an Answer.
type AnswerKind string

const (
	AnswerNone    AnswerKind = ""
	AnswerSingle  AnswerKind = "single"
	AnswerMulti   AnswerKind = "multi"
	AnswerNumber  AnswerKind = "number"
	AnswerDecimal AnswerKind = "decimal"
	AnswerText    AnswerKind = "text"
	AnswerTime    AnswerKind = "time"
)

// Answer is a tagged union over question answer shapes. Exactly one of
// Value/Values is meaningful depending on Kind.
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Value  string     `json:"value,omitempty"`
	Values []string   `json:"values,omitempty"`
}

// Empty reports whether the answer counts as unanswered.
func (a Answer) Empty() bool {
	switch a.Kind {
	case AnswerMulti:
		return len(a.Values) == 0
	case AnswerNone:
		return true
	default:
		return strings.TrimSpace(a.Value) == ""
	}
}

// Submission flattens the answer into the string form the CRM expects.
func (a Answer) Submission() string {
	switch a.Kind {
	case AnswerMulti:
		return strings.Join(a.Values, ", ")
	case AnswerSingle, AnswerNumber, AnswerDecimal, AnswerText, AnswerTime:
		return a.Value
	default:
		return ""
	}
}

// KindForQuestion maps a CRM question type tag onto an answer kind.
func KindForQuestion(q quoting.Question) AnswerKind {
	switch q.Type {
	case quoting.TypeSelectList:
		return AnswerSingle
	case quoting.TypeMultiSelect:
		return AnswerMulti
	case quoting.TypeWholeNumber:
		return AnswerNumber
	case quoting.TypeDecimal:
		return AnswerDecimal
	case quoting.TypeTime:
		return AnswerTime
	default:
		return AnswerText
	}
}

// DefaultAnswer fills an unanswered optional question so pricing calls
// always carry a complete question set: numeric kinds default to "0",
// multi-select to an empty set, single-select to the first option.
func DefaultAnswer(q quoting.Question) Answer {
	kind := KindForQuestion(q)
	switch kind {
	case AnswerNumber, AnswerDecimal:
		return Answer{Kind: kind, Value: "0"}
	case AnswerMulti:
		return Answer{Kind: kind, Values: []string{}}
	case AnswerSingle:
		if len(q.Options) > 0 {
			return Answer{Kind: kind, Value: q.Options[0].Label}
		}
		return Answer{Kind: kind}
	default:
		return Answer{Kind: kind}
	}
}

// IsSlider reports whether a question is the numeric slider variant,
// which always carries an implicit default and never blocks calculation.
func IsSlider(q quoting.Question) bool {
	return q.Type == quoting.TypeWholeNumber || q.Type == quoting.TypeDecimal
}

// QuestionsForStep filters questions to one wizard phase, preserving order.
func QuestionsForStep(questions []quoting.Question, step string) []quoting.Question {
	out := make([]quoting.Question, 0, len(questions))
	for _, q := range questions {
		if q.Step == step {
			out = append(out, q)
		}
	}
	return out
}
