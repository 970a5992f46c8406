package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnostica-backend/internal/model"
	"diagnostica-backend/internal/survey"
)

func scoringCatalog(t *testing.T) *survey.Catalog {
	t.Helper()
	c, err := survey.NewCatalog([]survey.Question{
		{Code: "S1", OrderIndex: 1, Type: model.QuestionAgreementScale, Required: true,
			Dimension: "Strategy", Scale: &survey.ScaleConfig{Points: 5}},
		{Code: "S2", OrderIndex: 2, Type: model.QuestionAgreementScale, Required: true,
			Dimension: "Strategy", Scale: &survey.ScaleConfig{Points: 5}},
		{Code: "F1", OrderIndex: 3, Type: model.QuestionSingleChoice, Required: true,
			Dimension: "Finance", Options: []string{"Never", "Sometimes", "Always"}},
		{Code: "T1", OrderIndex: 4, Type: model.QuestionTextarea, Required: false,
			Dimension: "Strategy"},
	})
	require.NoError(t, err)
	return c
}

func TestScoreDimensions(t *testing.T) {
	catalog := scoringCatalog(t)
	values := map[string]survey.Value{
		"S1": survey.NumberValue(5), // top of a 5-point scale -> 100
		"S2": survey.NumberValue(3), // midpoint -> 50
		"F1": survey.TextValue("Always"),
		"T1": survey.TextValue("free text carries no score"),
	}

	dims := scoreDimensions(catalog, values)
	require.Len(t, dims, 2)

	strategy := dims[0]
	assert.Equal(t, "Strategy", strategy.Dimension)
	assert.InDelta(t, 75, strategy.Score, 0.01)
	assert.Equal(t, 3, strategy.Answered)
	assert.Equal(t, 3, strategy.Questions)

	finance := dims[1]
	assert.Equal(t, "Finance", finance.Dimension)
	assert.InDelta(t, 100, finance.Score, 0.01, "last option scores full marks")
}

func TestScoreDimensionsSkipsUnanswered(t *testing.T) {
	catalog := scoringCatalog(t)
	dims := scoreDimensions(catalog, map[string]survey.Value{})
	require.Len(t, dims, 2)
	for _, d := range dims {
		assert.Zero(t, d.Score)
		assert.Zero(t, d.Answered)
	}
}

func TestScoreAnswerScaleInterpolation(t *testing.T) {
	q := survey.Question{Type: model.QuestionAgreementScale, Scale: &survey.ScaleConfig{Points: 5}}

	score, ok := scoreAnswer(q, survey.NumberValue(1))
	require.True(t, ok)
	assert.InDelta(t, 0, score, 0.01)

	score, ok = scoreAnswer(q, survey.NumberValue(4))
	require.True(t, ok)
	assert.InDelta(t, 75, score, 0.01)

	// Out-of-range values clamp instead of skewing the average.
	score, ok = scoreAnswer(q, survey.NumberValue(9))
	require.True(t, ok)
	assert.InDelta(t, 100, score, 0.01)
}

func TestScoreAnswerChoiceByOptionOrder(t *testing.T) {
	q := survey.Question{Type: model.QuestionSingleChoice, Options: []string{"No", "Partially", "Yes"}}

	score, ok := scoreAnswer(q, survey.TextValue("Partially"))
	require.True(t, ok)
	assert.InDelta(t, 50, score, 0.01)

	_, ok = scoreAnswer(q, survey.TextValue("not an option"))
	assert.False(t, ok)
}

func TestRenderPDFProducesDocument(t *testing.T) {
	svc := &reportService{}
	report := &DiagnosticReport{
		SurveyTitle:  "Business Diagnostic",
		CompanyName:  "Acme SA",
		OverallScore: 62.5,
		Dimensions: []DimensionScore{
			{Dimension: "Strategy", Score: 75, Answered: 3, Questions: 3},
			{Dimension: "Finance", Score: 50, Answered: 2, Questions: 2},
		},
		CompletedCount: 12,
	}
	data, err := svc.RenderPDF(report)
	require.NoError(t, err)
	assert.Greater(t, len(data), 500)
	assert.Equal(t, "%PDF", string(data[:4]))
}
