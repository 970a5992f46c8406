package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gorm.io/gorm"

	"diagnostica-backend/internal/db"
	"diagnostica-backend/internal/model"
	"diagnostica-backend/utilities"
)

const defaultSurveySlug = "business-diagnostic"

// seedDatabase loads the diagnostic questionnaire and an admin user.
// Idempotent: an existing survey or admin row is left alone.
func seedDatabase() error {
	conn := db.GetDB()

	var existing model.Survey
	err := conn.Where("slug = ?", defaultSurveySlug).First(&existing).Error
	if err == nil {
		utilities.Info("survey %q already seeded", defaultSurveySlug)
		return seedAdminUser()
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	agree := func(code string, order int, prompt, dimension, subdimension string) model.Question {
		return model.Question{
			Code: code, OrderIndex: order, Prompt: prompt,
			QuestionType: model.QuestionAgreementScale, Required: true,
			ScalePoints: 5, ScaleMin: "Strongly disagree", ScaleMax: "Strongly agree",
			Dimension: dimension, Subdimension: subdimension,
		}
	}

	sv := model.Survey{
		Slug:        defaultSurveySlug,
		Title:       "Business Diagnostic",
		Description: "Baseline diagnostic across strategy, finance, operations, talent and technology.",
		Questions: []model.Question{
			{Code: "Q01", OrderIndex: 1, Prompt: "Describe your company's main line of business.",
				QuestionType: model.QuestionTextarea, Required: true, Dimension: "Strategy"},
			{Code: "Q02", OrderIndex: 2, Prompt: "Does your company have a written strategic plan?",
				QuestionType: model.QuestionSingleChoice, Required: true,
				Options: `["Yes","No"]`, Dimension: "Strategy", Subdimension: "Planning"},
			agree("Q03", 3, "Leadership reviews strategic goals at least quarterly.", "Strategy", "Planning"),
			{Code: "Q04", OrderIndex: 4, Prompt: "How many employees does your company have?",
				QuestionType: model.QuestionNumeric, Required: true, Dimension: "Talent"},
			{Code: "Q05", OrderIndex: 5, Prompt: "Which areas have documented processes?",
				QuestionType: model.QuestionMultiChoice, Required: false,
				Options: `["Sales","Production","Purchasing","Accounting","Human resources"]`,
				Dimension: "Operations", Subdimension: "Processes"},
			agree("Q06", 6, "Monthly financial statements are available within ten days of closing.", "Finance", "Reporting"),
			agree("Q07", 7, "Cash flow is projected at least three months ahead.", "Finance", "Cash management"),
			{Code: "Q08", OrderIndex: 8, Prompt: "How would you rate your current inventory control?",
				QuestionType: model.QuestionScaled, Required: true,
				Options: `["Very poor","Poor","Acceptable","Good","Excellent"]`,
				Dimension: "Operations", Subdimension: "Inventory"},
			agree("Q09", 9, "Roles and responsibilities are clearly defined for every position.", "Talent", "Organization"),
			agree("Q10", 10, "The company invests in regular employee training.", "Talent", "Development"),
			{Code: "Q11", OrderIndex: 11, Prompt: "Which digital tools does the company use daily?",
				QuestionType: model.QuestionMultiChoice, Required: false,
				Options: `["Accounting software","CRM","ERP","E-commerce","Digital marketing"]`,
				Dimension: "Technology", Subdimension: "Adoption"},
			agree("Q12", 12, "Critical business data is backed up automatically.", "Technology", "Continuity"),
			{Code: "Q13", OrderIndex: 13, Prompt: "What is your approximate annual revenue (USD)?",
				QuestionType: model.QuestionNumeric, Required: false, Dimension: "Finance"},
			agree("Q14", 14, "Customer satisfaction is measured in a structured way.", "Operations", "Customers"),
			{Code: "Q15", OrderIndex: 15, Prompt: "What is the biggest obstacle for growth right now?",
				QuestionType: model.QuestionTextarea, Required: true, Dimension: "Strategy", Subdimension: "Growth"},
		},
	}

	if err := conn.Create(&sv).Error; err != nil {
		return fmt.Errorf("failed to seed survey: %w", err)
	}
	utilities.Info("seeded survey %q with %d questions", sv.Slug, len(sv.Questions))
	return seedAdminUser()
}

func seedAdminUser() error {
	conn := db.GetDB()
	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@diagnostica.local"
	}

	var existing model.User
	if err := conn.Where("email = ?", adminEmail).First(&existing).Error; err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("ADMIN_PASSWORD not set and no terminal to prompt on")
		}
		fmt.Printf("Password for %s: ", adminEmail)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}
		password = string(raw)
	}
	if password == "" {
		return errors.New("admin password cannot be empty")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := model.User{
		Email:     adminEmail,
		Password:  string(hashed),
		FirstName: "Admin",
	}
	if err := conn.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	utilities.Info("seeded admin user %s", adminEmail)
	return nil
}
