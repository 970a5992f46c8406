package service

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"diagnostica-backend/internal/db"
	"diagnostica-backend/internal/model"
	"diagnostica-backend/internal/repository"
	"diagnostica-backend/internal/survey"
)

// ErrReportNotReady is returned while the questionnaire is still open.
var ErrReportNotReady = errors.New("survey is not completed yet")

// DimensionScore is one axis of the diagnostic result, 0-100.
type DimensionScore struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
	Answered  int     `json:"answered"`
	Questions int     `json:"questions"`
}

// DiagnosticReport is the computed result for one completed session.
type DiagnosticReport struct {
	SessionID      string           `json:"session_id"`
	SurveyTitle    string           `json:"survey_title"`
	CompanyName    string           `json:"company_name,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
	OverallScore   float64          `json:"overall_score"`
	Dimensions     []DimensionScore `json:"dimensions"`
	CompletedCount int64            `json:"completed_participants"`
}

type ReportService interface {
	GetReport(userID uint, sessionID string) (*DiagnosticReport, error)
	RenderPDF(report *DiagnosticReport) ([]byte, error)
}

type reportService struct {
	surveyRepo      repository.SurveyRepository
	participantRepo repository.ParticipantRepository
	responseRepo    repository.ResponseRepository
	userRepo        repository.UserRepository
	executor        *db.QueryExecutor
}

func NewReportService(
	surveyRepo repository.SurveyRepository,
	participantRepo repository.ParticipantRepository,
	responseRepo repository.ResponseRepository,
	userRepo repository.UserRepository,
	executor *db.QueryExecutor,
) ReportService {
	return &reportService{
		surveyRepo:      surveyRepo,
		participantRepo: participantRepo,
		responseRepo:    responseRepo,
		userRepo:        userRepo,
		executor:        executor,
	}
}

func (s *reportService) GetReport(userID uint, sessionID string) (*DiagnosticReport, error) {
	participant, err := s.participantRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if participant.UserID != userID {
		return nil, ErrSessionOwnership
	}
	if participant.Status != model.StatusCompleted || participant.CompletedAt == nil {
		return nil, ErrReportNotReady
	}

	questions, err := s.surveyRepo.ListQuestions(participant.SurveyID)
	if err != nil {
		return nil, err
	}
	catalog, err := survey.CatalogFromModels(questions)
	if err != nil {
		return nil, err
	}
	rows, err := s.responseRepo.GetRows(participant.ID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]survey.Value, len(rows))
	for _, row := range rows {
		values[row.QuestionCode] = survey.DecodeValue(row.ValueType, row.ValueJSON)
	}

	report := &DiagnosticReport{
		SessionID:   sessionID,
		CompletedAt: *participant.CompletedAt,
		Dimensions:  scoreDimensions(catalog, values),
	}
	if len(report.Dimensions) > 0 {
		var sum float64
		for _, d := range report.Dimensions {
			sum += d.Score
		}
		report.OverallScore = sum / float64(len(report.Dimensions))
	}

	var surveys []model.Survey
	surveys, err = s.surveyRepo.GetSurveys()
	if err == nil {
		for _, sv := range surveys {
			if sv.ID == participant.SurveyID {
				report.SurveyTitle = sv.Title
				break
			}
		}
	}
	if user, uerr := s.userRepo.GetUserByID(participant.UserID); uerr == nil {
		report.CompanyName = user.CompanyName
	}

	// How many participants finished this survey, for the benchmark
	// line in the report. Best effort; the report works without it.
	if s.executor != nil {
		count, cerr := s.executor.Count("participants", map[string]interface{}{
			"survey_id": participant.SurveyID,
			"status":    model.StatusCompleted,
		})
		if cerr == nil {
			report.CompletedCount = count
		}
	}
	return report, nil
}

// scoreDimensions averages the scorable answers per dimension on a
// 0-100 scale. Free-text answers carry no score and only count toward
// the answered tally.
func scoreDimensions(catalog *survey.Catalog, values map[string]survey.Value) []DimensionScore {
	type acc struct {
		sum       float64
		scored    int
		answered  int
		questions int
	}
	order := []string{}
	byDim := map[string]*acc{}

	for _, q := range catalog.Questions() {
		dim := q.Dimension
		if dim == "" {
			dim = "General"
		}
		a, ok := byDim[dim]
		if !ok {
			a = &acc{}
			byDim[dim] = a
			order = append(order, dim)
		}
		a.questions++
		v, ok := values[q.Code]
		if !ok || v.IsZero() {
			continue
		}
		a.answered++
		if score, ok := scoreAnswer(q, v); ok {
			a.sum += score
			a.scored++
		}
	}

	out := make([]DimensionScore, 0, len(order))
	for _, dim := range order {
		a := byDim[dim]
		d := DimensionScore{Dimension: dim, Answered: a.answered, Questions: a.questions}
		if a.scored > 0 {
			d.Score = a.sum / float64(a.scored)
		}
		out = append(out, d)
	}
	return out
}

// scoreAnswer maps one answer onto 0-100. Scale answers interpolate
// across their point range, choice answers across the option order.
func scoreAnswer(q survey.Question, v survey.Value) (float64, bool) {
	points := 0
	if q.Scale != nil {
		points = q.Scale.Points
	} else if len(q.Options) > 0 {
		points = len(q.Options)
	}

	switch v.Kind {
	case survey.KindNumber:
		if points > 1 {
			return clampScore((v.Number - 1) / float64(points-1) * 100), true
		}
		return clampScore(v.Number), true
	case survey.KindText:
		for i, opt := range q.Options {
			if opt == v.Text {
				if len(q.Options) == 1 {
					return 100, true
				}
				return float64(i) / float64(len(q.Options)-1) * 100, true
			}
		}
		return 0, false
	}
	return 0, false
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// RenderPDF lays out the downloadable report.
func (s *reportService) RenderPDF(report *DiagnosticReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 12, "Diagnostic Report")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, report.SurveyTitle)
	pdf.Ln(7)
	if report.CompanyName != "" {
		pdf.Cell(0, 7, report.CompanyName)
		pdf.Ln(7)
	}
	pdf.Cell(0, 7, "Completed: "+report.CompletedAt.Format("2006-01-02 15:04"))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(110, 8, "Dimension", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, "Score", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 8, "Answered", "1", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, d := range report.Dimensions {
		pdf.CellFormat(110, 8, d.Dimension, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.1f", d.Score), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%d/%d", d.Answered, d.Questions), "1", 1, "C", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Overall score: %.1f / 100", report.OverallScore))
	pdf.Ln(8)
	if report.CompletedCount > 1 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(0, 6, fmt.Sprintf("Benchmarked against %d completed diagnostics.", report.CompletedCount))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
