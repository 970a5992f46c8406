package survey

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"diagnostica-backend/internal/model"
)

var (
	// ErrCatalogEmpty means the survey resolved to zero questions. It is
	// fatal at initialization and never retried.
	ErrCatalogEmpty = errors.New("survey catalog is empty")
	// ErrCatalogOrder means order indexes are not contiguous from 1.
	ErrCatalogOrder = errors.New("survey catalog order indexes are not contiguous")
)

// ScaleConfig describes an agreement-scale question.
type ScaleConfig struct {
	Points   int    `json:"points"`
	MinLabel string `json:"min_label"`
	MaxLabel string `json:"max_label"`
}

// Question is the decoded, immutable view of a catalog question.
type Question struct {
	Code         string       `json:"code"`
	OrderIndex   int          `json:"order_index"`
	Prompt       string       `json:"prompt"`
	Type         string       `json:"question_type"`
	Required     bool         `json:"required"`
	Options      []string     `json:"options,omitempty"`
	Scale        *ScaleConfig `json:"scale,omitempty"`
	Dimension    string       `json:"dimension,omitempty"`
	Subdimension string       `json:"subdimension,omitempty"`
}

// Catalog holds the ordered question list for one survey. Loaded once
// per session and immutable afterwards.
type Catalog struct {
	questions []Question
}

// NewCatalog validates ordering and builds a catalog. Questions are
// sorted by order index; indexes must form a contiguous range from 1.
func NewCatalog(questions []Question) (*Catalog, error) {
	if len(questions) == 0 {
		return nil, ErrCatalogEmpty
	}
	qs := make([]Question, len(questions))
	copy(qs, questions)
	sort.Slice(qs, func(i, j int) bool { return qs[i].OrderIndex < qs[j].OrderIndex })
	for i, q := range qs {
		if q.OrderIndex != i+1 {
			return nil, fmt.Errorf("%w: question %q has order %d, want %d", ErrCatalogOrder, q.Code, q.OrderIndex, i+1)
		}
	}
	return &Catalog{questions: qs}, nil
}

// CatalogFromModels decodes persisted question rows into a catalog.
func CatalogFromModels(rows []model.Question) (*Catalog, error) {
	questions := make([]Question, 0, len(rows))
	for _, row := range rows {
		q := Question{
			Code:         row.Code,
			OrderIndex:   row.OrderIndex,
			Prompt:       row.Prompt,
			Type:         row.QuestionType,
			Required:     row.Required,
			Dimension:    row.Dimension,
			Subdimension: row.Subdimension,
		}
		if row.Options != "" {
			if err := json.Unmarshal([]byte(row.Options), &q.Options); err != nil {
				return nil, fmt.Errorf("question %q has malformed options: %w", row.Code, err)
			}
		}
		if row.QuestionType == model.QuestionAgreementScale {
			q.Scale = &ScaleConfig{Points: row.ScalePoints, MinLabel: row.ScaleMin, MaxLabel: row.ScaleMax}
		}
		questions = append(questions, q)
	}
	return NewCatalog(questions)
}

func (c *Catalog) Len() int { return len(c.questions) }

// At returns the question at the given 0-based position.
func (c *Catalog) At(i int) Question { return c.questions[i] }

// Questions returns the ordered list. Callers must not mutate it.
func (c *Catalog) Questions() []Question { return c.questions }

// Accepts reports whether a stored value's tag still fits the current
// question definition. A leftover value with the wrong tag is treated
// as absent by the session, never as a crash.
func Accepts(q Question, v Value) bool {
	switch q.Type {
	case model.QuestionText, model.QuestionTextarea, model.QuestionSingleChoice:
		return v.Kind == KindText
	case model.QuestionMultiChoice:
		return v.Kind == KindChoices
	case model.QuestionNumeric:
		return v.Kind == KindNumber
	case model.QuestionScaled, model.QuestionAgreementScale:
		return v.Kind == KindNumber || v.Kind == KindText
	}
	return v.Kind == KindStructured
}

// IsAnswerValid implements required-field gating. Non-required
// questions are valid regardless of value; required questions need a
// defined, non-empty value whose tag fits the question type.
func IsAnswerValid(q Question, v Value) bool {
	if !q.Required {
		return true
	}
	if v.IsEmpty() {
		return false
	}
	return Accepts(q, v)
}
