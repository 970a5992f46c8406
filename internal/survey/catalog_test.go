package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnostica-backend/internal/model"
)

func TestNewCatalogRejectsEmpty(t *testing.T) {
	_, err := NewCatalog(nil)
	assert.ErrorIs(t, err, ErrCatalogEmpty)
}

func TestNewCatalogRequiresContiguousOrder(t *testing.T) {
	_, err := NewCatalog([]Question{
		{Code: "Q1", OrderIndex: 1, Type: model.QuestionText},
		{Code: "Q3", OrderIndex: 3, Type: model.QuestionText},
	})
	assert.ErrorIs(t, err, ErrCatalogOrder)
}

func TestNewCatalogSortsByOrderIndex(t *testing.T) {
	c, err := NewCatalog([]Question{
		{Code: "Q2", OrderIndex: 2, Type: model.QuestionText},
		{Code: "Q1", OrderIndex: 1, Type: model.QuestionText},
		{Code: "Q3", OrderIndex: 3, Type: model.QuestionText},
	})
	require.NoError(t, err)
	assert.Equal(t, "Q1", c.At(0).Code)
	assert.Equal(t, "Q3", c.At(2).Code)
}

func TestCatalogFromModelsDecodesOptionsAndScale(t *testing.T) {
	c, err := CatalogFromModels([]model.Question{
		{Code: "Q1", OrderIndex: 1, QuestionType: model.QuestionSingleChoice, Options: `["Yes","No"]`},
		{Code: "Q2", OrderIndex: 2, QuestionType: model.QuestionAgreementScale, ScalePoints: 5, ScaleMin: "Disagree", ScaleMax: "Agree"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Yes", "No"}, c.At(0).Options)
	require.NotNil(t, c.At(1).Scale)
	assert.Equal(t, 5, c.At(1).Scale.Points)
}

func TestIsAnswerValidGating(t *testing.T) {
	reqChoice := Question{Code: "Q1", Type: model.QuestionSingleChoice, Required: true, Options: []string{"Yes", "No"}}
	reqText := Question{Code: "Q2", Type: model.QuestionText, Required: true}
	reqMulti := Question{Code: "Q3", Type: model.QuestionMultiChoice, Required: true, Options: []string{"A", "B"}}
	optional := Question{Code: "Q4", Type: model.QuestionNumeric, Required: false}

	cases := []struct {
		name  string
		q     Question
		v     Value
		valid bool
	}{
		{"required choice, no selection", reqChoice, Value{}, false},
		{"required choice, any option", reqChoice, TextValue("Yes"), true},
		{"required text, blank after trim", reqText, TextValue("   "), false},
		{"required text, present", reqText, TextValue("growth"), true},
		{"required multi, empty list", reqMulti, ChoicesValue(), false},
		{"required multi, one selection", reqMulti, ChoicesValue("A"), true},
		{"required choice, wrong tag", reqChoice, NumberValue(2), false},
		{"optional, absent", optional, Value{}, true},
		{"optional, wrong tag", optional, TextValue("n/a"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, IsAnswerValid(tc.q, tc.v))
		})
	}
}

func TestAcceptsTagCompatibility(t *testing.T) {
	assert.True(t, Accepts(Question{Type: model.QuestionScaled}, NumberValue(3)))
	assert.True(t, Accepts(Question{Type: model.QuestionScaled}, TextValue("3")))
	assert.False(t, Accepts(Question{Type: model.QuestionNumeric}, TextValue("3")))
	assert.False(t, Accepts(Question{Type: model.QuestionMultiChoice}, TextValue("A")))
}
