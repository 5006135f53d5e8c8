package llm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/claimcheck/internal/model"
)

const (
	maxExplanationLen     = 500
	defaultConfidence     = 0.5
	defaultRecommendation = "Please review the detailed explanation for specific guidance."
)

var (
	sectionHeader = regexp.MustCompile(`(?im)^[\s*#]*(EXECUTIVE_SUMMARY|VALIDATION_STATUS|DETAILED_EXPLANATION|TECHNICAL_RULES_STATUS|MEDICAL_RULES_STATUS|RECOMMENDATIONS?|CONFIDENCE|NOTES)[\s*]*:[ \t*]*`)

	technicalStatus = regexp.MustCompile(`(?i)TECHNICAL_VALIDATION[\s*]*:[\s*]*(PASS|FAIL)\b`)
	medicalStatus   = regexp.MustCompile(`(?i)MEDICAL_VALIDATION[\s*]*:[\s*]*(PASS|FAIL)\b`)
	confidenceValue = regexp.MustCompile(`([0-9]*\.?[0-9]+)`)
	ruleLine        = regexp.MustCompile(`(?i)^-\s*(.+?):\s*(PASS|FAIL)\s*-\s*(.+)$`)
)

// ParseResponse reads the sectioned advisory response into an opinion.
// Statuses that are absent or malformed stay Unknown.
func ParseResponse(text string) *model.AdvisoryOpinion {
	opinion := &model.AdvisoryOpinion{
		ConfidenceScore:   defaultConfidence,
		RecommendedAction: defaultRecommendation,
	}
	if strings.TrimSpace(text) == "" {
		return opinion
	}

	sections := splitSections(text)

	summary := sections["EXECUTIVE_SUMMARY"]
	if detail, ok := sections["DETAILED_EXPLANATION"]; ok && detail != "" {
		opinion.Explanation = truncate(detail, maxExplanationLen)
		opinion.EnhancedExplanation = detail
	}

	if rec := sections["RECOMMENDATIONS"]; rec != "" {
		opinion.RecommendedAction = rec
	} else if rec := sections["RECOMMENDATION"]; rec != "" {
		opinion.RecommendedAction = rec
	}

	if conf, ok := sections["CONFIDENCE"]; ok {
		if m := confidenceValue.FindStringSubmatch(conf); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				opinion.ConfidenceScore = clamp(v, 0, 1)
			}
		}
	}

	if status, ok := sections["VALIDATION_STATUS"]; ok {
		opinion.TechnicalStatus = verdict(technicalStatus.FindStringSubmatch(status))
		opinion.MedicalStatus = verdict(medicalStatus.FindStringSubmatch(status))
	}

	opinion.TechnicalRules = parseRuleLines(sections["TECHNICAL_RULES_STATUS"])
	opinion.MedicalRules = parseRuleLines(sections["MEDICAL_RULES_STATUS"])

	// Unstructured reply: keep the whole text
	if opinion.EnhancedExplanation == "" {
		opinion.EnhancedExplanation = strings.TrimSpace(text)
		opinion.Explanation = truncate(opinion.EnhancedExplanation, maxExplanationLen)
	}

	if summary != "" {
		opinion.EnhancedExplanation = "EXECUTIVE SUMMARY:\n" + summary + "\n\nDETAILED EXPLANATION:\n" + opinion.EnhancedExplanation
	}

	return opinion
}

// splitSections maps each known header to the text up to the next header.
// The first occurrence of a header wins.
func splitSections(text string) map[string]string {
	sections := make(map[string]string)
	matches := sectionHeader.FindAllStringSubmatchIndex(text, -1)

	for i, m := range matches {
		name := strings.ToUpper(text[m[2]:m[3]])
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if _, seen := sections[name]; seen {
			continue
		}
		sections[name] = strings.TrimSpace(text[m[1]:end])
	}
	return sections
}

func parseRuleLines(section string) []model.RuleStatus {
	var out []model.RuleStatus
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		m := ruleLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, model.RuleStatus{
			Rule:   strings.TrimSpace(m[1]),
			Status: model.Verdict(strings.ToUpper(m[2])),
			Reason: strings.TrimSpace(m[3]),
		})
	}
	return out
}

func verdict(m []string) model.Verdict {
	if m == nil {
		return model.VerdictUnknown
	}
	return model.Verdict(strings.ToUpper(m[1]))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
