package pipeline

import (
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const (
	validatedExplanation = "No errors detected. Claim passes all validation rules."
	approveAction        = "Approve claim for payment."
	technicalAction      = "Obtain required prior approval and verify all ID formats before resubmission."
	medicalAction        = "Review service-diagnosis alignment and facility eligibility before resubmission."
	genericAction        = "Review and correct all identified errors."
	dataQualityAction    = "Correct the missing or invalid fields and resubmit the claim."
)

// classify applies the precedence table
func classify(technicalFailed, medicalFailed bool) (model.Status, model.ErrorType) {
	switch {
	case technicalFailed && medicalFailed:
		return model.StatusNotValidated, model.ErrorTypeBoth
	case technicalFailed:
		return model.StatusNotValidated, model.ErrorTypeTechnical
	case medicalFailed:
		return model.StatusNotValidated, model.ErrorTypeMedical
	default:
		return model.StatusValidated, model.ErrorTypeNone
	}
}

// aggregate derives the verdict from the claim's static error lists
func aggregate(c *model.Claim) {
	c.Status, c.ErrorType = classify(len(c.TechnicalErrors) > 0, len(c.MedicalErrors) > 0)

	if c.Status == model.StatusValidated {
		c.ErrorExplanation = validatedExplanation
		c.RecommendedAction = approveAction
		return
	}
	c.ErrorExplanation = bullets(c.TechnicalErrors, c.MedicalErrors)
	c.RecommendedAction = recommend(c.TechnicalErrors, c.MedicalErrors)
}

// rejectDataQuality finalises a claim that failed the data quality stage
func rejectDataQuality(c *model.Claim, findings []model.Finding) {
	c.DataQualityErrors = append(c.DataQualityErrors, findings...)
	c.Status = model.StatusNotValidated
	c.ErrorType = model.ErrorTypeTechnical
	c.ErrorExplanation = bullets(c.DataQualityErrors)
	c.RecommendedAction = dataQualityAction
}

func bullets(lists ...[]model.Finding) string {
	var lines []string
	for _, list := range lists {
		for _, f := range list {
			lines = append(lines, "• "+f.Detail)
		}
	}
	return strings.Join(lines, "\n")
}

func recommend(technical, medical []model.Finding) string {
	switch {
	case len(technical) > 0:
		return technicalAction
	case len(medical) > 0:
		return medicalAction
	default:
		return genericAction
	}
}
