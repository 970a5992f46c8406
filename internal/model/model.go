package model

import "time"

// Participant statuses. A participant row is only ever created in
// "in_progress"; "not_started" exists solely as the virtual state
// observed before any row exists.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Question types supported by the diagnostic catalog.
const (
	QuestionText           = "text"
	QuestionTextarea       = "textarea"
	QuestionSingleChoice   = "single-choice"
	QuestionMultiChoice    = "multi-choice"
	QuestionNumeric        = "numeric"
	QuestionScaled         = "scaled"
	QuestionAgreementScale = "agreement-scale"
)

type User struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Email       string    `json:"email" gorm:"uniqueIndex;not null"`
	Password    string    `json:"password,omitempty"` // bcrypt hash, stripped before responses
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CompanyName string    `json:"company_name"`
	RUC         string    `json:"ruc"` // opaque here; registry validation happens elsewhere
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Survey struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Slug        string     `json:"slug" gorm:"uniqueIndex;not null"`
	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions,omitempty" gorm:"foreignKey:SurveyID"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Question struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	SurveyID     uint   `json:"survey_id" gorm:"not null;uniqueIndex:idx_survey_code;uniqueIndex:idx_survey_order"`
	Code         string `json:"code" gorm:"not null;uniqueIndex:idx_survey_code"`
	OrderIndex   int    `json:"order_index" gorm:"not null;uniqueIndex:idx_survey_order"` // 1-based, contiguous per survey
	Prompt       string `json:"prompt" gorm:"not null"`
	QuestionType string `json:"question_type" gorm:"not null"`
	Required     bool   `json:"required"`
	Options      string `json:"options"` // JSON array of option labels, choice/scale types only
	ScalePoints  int    `json:"scale_points"`
	ScaleMin     string `json:"scale_min_label"`
	ScaleMax     string `json:"scale_max_label"`
	Dimension    string `json:"dimension"`
	Subdimension string `json:"subdimension"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Participant struct {
	ID                   uint       `json:"id" gorm:"primaryKey"`
	SessionID            string     `json:"session_id" gorm:"uniqueIndex;not null"`
	UserID               uint       `json:"user_id" gorm:"not null;uniqueIndex:idx_user_survey"`
	SurveyID             uint       `json:"survey_id" gorm:"not null;uniqueIndex:idx_user_survey"`
	Status               string     `json:"status" gorm:"not null;default:'in_progress'"`
	CurrentQuestionIndex int        `json:"current_question_index" gorm:"default:0"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type Response struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ParticipantID uint      `json:"participant_id" gorm:"not null;uniqueIndex:idx_participant_question"`
	QuestionCode  string    `json:"question_code" gorm:"not null;uniqueIndex:idx_participant_question"`
	ValueType     string    `json:"value_type" gorm:"not null"`
	ValueJSON     string    `json:"value_json"`
	UpdatedAt     time.Time `json:"updated_at"`
}
