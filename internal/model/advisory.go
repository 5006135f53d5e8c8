package model

// Verdict is an explicit PASS/FAIL signal; Unknown when it could not be derived
type Verdict string

const (
	VerdictUnknown Verdict = ""
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
)

// RuleStatus is one line of the advisory evaluator's per-rule breakdown
type RuleStatus struct {
	Rule   string  `json:"rule"`
	Status Verdict `json:"status"`
	Reason string  `json:"reason,omitempty"`
}

// AdvisoryOpinion is the structured output of the advisory evaluator
type AdvisoryOpinion struct {
	ConfidenceScore     float64      `json:"confidence_score"`
	Explanation         string       `json:"explanation"`
	EnhancedExplanation string       `json:"enhanced_explanation,omitempty"`
	RecommendedAction   string       `json:"recommended_action,omitempty"`
	TechnicalStatus     Verdict      `json:"technical_validation_status,omitempty"`
	MedicalStatus       Verdict      `json:"medical_validation_status,omitempty"`
	TechnicalRules      []RuleStatus `json:"technical_rules_status,omitempty"`
	MedicalRules        []RuleStatus `json:"medical_rules_status,omitempty"`
	RetrievedRules      []string     `json:"retrieved_rules,omitempty"`
}

// Failing returns the FAIL entries of a rule status list
func Failing(statuses []RuleStatus) []RuleStatus {
	var out []RuleStatus
	for _, s := range statuses {
		if s.Status == VerdictFail {
			out = append(out, s)
		}
	}
	return out
}

// Passing returns the PASS entries of a rule status list
func Passing(statuses []RuleStatus) []RuleStatus {
	var out []RuleStatus
	for _, s := range statuses {
		if s.Status == VerdictPass {
			out = append(out, s)
		}
	}
	return out
}

// AdvisoryResult is the advisory metadata kept on a reconciled claim
type AdvisoryResult struct {
	Evaluated      bool     `json:"llm_evaluated"`
	Confidence     float64  `json:"confidence_score"`
	Explanation    string   `json:"llm_explanation,omitempty"`
	RetrievedRules []string `json:"retrieved_rules,omitempty"`
}
