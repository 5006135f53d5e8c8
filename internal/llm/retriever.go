package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const topicEncounterFallback = "encounter_type_fallback"

// RuleSnippet is one piece of a tenant's rule documents rendered as text
type RuleSnippet struct {
	Kind    model.RuleKind
	Topic   string
	Content string
}

func (s RuleSnippet) String() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(s.Kind)), s.Content)
}

// RuleRetriever selects the rule statements relevant to one claim. It reads
// the structured documents directly, so retrieval is exact.
type RuleRetriever struct {
	topK int
}

// NewRuleRetriever creates a retriever returning at most topK snippets
func NewRuleRetriever(topK int) *RuleRetriever {
	if topK <= 0 {
		topK = 30
	}
	return &RuleRetriever{topK: topK}
}

// Retrieve renders the rules that bear on the claim's codes, encounter
// and facility. Technical statements come first.
func (r *RuleRetriever) Retrieve(claim *model.Claim, rules model.RuleSet) []RuleSnippet {
	var out []RuleSnippet
	if rules.Technical != nil {
		out = append(out, technicalSnippets(claim, rules.Technical)...)
	}
	if rules.Medical != nil {
		out = append(out, medicalSnippets(claim, rules.Medical)...)
	}

	if !mentionsEncounter(out) {
		out = append(out, RuleSnippet{
			Kind:  model.RuleKindMedical,
			Topic: topicEncounterFallback,
			Content: "Encounter-type restriction rule: each service code must match its allowed encounter type. " +
				"An inpatient-only service cannot be billed for an outpatient encounter, and vice versa.",
		})
	}

	if len(out) > r.topK {
		out = out[:r.topK]
	}
	return out
}

// HasMedicalRules reports whether any tenant medical rule was retrieved
func HasMedicalRules(snippets []RuleSnippet) bool {
	for _, s := range snippets {
		if s.Kind == model.RuleKindMedical && s.Topic != topicEncounterFallback {
			return true
		}
	}
	return false
}

// SnippetStrings renders snippets for storage on the claim
func SnippetStrings(snippets []RuleSnippet) []string {
	out := make([]string, len(snippets))
	for i, s := range snippets {
		out[i] = s.String()
	}
	return out
}

func technicalSnippets(claim *model.Claim, rules *model.TechnicalRules) []RuleSnippet {
	var out []RuleSnippet
	add := func(topic, format string, args ...any) {
		out = append(out, RuleSnippet{Kind: model.RuleKindTechnical, Topic: topic, Content: fmt.Sprintf(format, args...)})
	}

	if claim.ServiceCode != "" {
		if contains(rules.ServicesRequiringApproval, claim.ServiceCode) {
			add("service_approval", "Service code %s requires prior approval (listed in services_requiring_approval).", claim.ServiceCode)
		} else {
			add("service_approval", "Service code %s does not require prior approval.", claim.ServiceCode)
		}
	}

	for _, dx := range dedupe(claim.DiagnosisCodes) {
		if contains(rules.DiagnosesRequiringApproval, dx) {
			add("diagnosis_approval", "Diagnosis code %s requires prior approval (listed in diagnoses_requiring_approval).", dx)
		} else {
			add("diagnosis_approval", "Diagnosis code %s does not require prior approval.", dx)
		}
	}

	if len(rules.ServicesRequiringApproval) > 0 {
		add("service_approval", "services_requiring_approval: %s", bracket(rules.ServicesRequiringApproval))
	}
	if len(rules.DiagnosesRequiringApproval) > 0 {
		add("diagnosis_approval", "diagnoses_requiring_approval: %s", bracket(rules.DiagnosesRequiringApproval))
	}

	if claim.PaidAmount != nil && rules.PaidAmountThreshold > 0 {
		add("paid_amount", "Claims with a paid amount above %.2f AED require additional approval.", rules.PaidAmountThreshold)
	}

	if claim.UniqueID != "" {
		add("unique_id", "Unique ID must match the pattern %s.", rules.UniqueIDPattern)
		if rules.UniqueIDValidation.VerifySegments {
			add("unique_id", "Unique ID segments must be the first 4 characters of the National ID, the middle 4 of the Member ID and the last 4 of the Facility ID, uppercase and hyphen-separated.")
		}
	}

	return out
}

func medicalSnippets(claim *model.Claim, rules *model.MedicalRules) []RuleSnippet {
	var out []RuleSnippet
	add := func(topic, format string, args ...any) {
		out = append(out, RuleSnippet{Kind: model.RuleKindMedical, Topic: topic, Content: fmt.Sprintf(format, args...)})
	}

	// Encounter eligibility
	if claim.ServiceCode != "" {
		for _, enc := range []struct {
			name     model.EncounterType
			services []string
		}{
			{model.EncounterInpatient, rules.InpatientServices},
			{model.EncounterOutpatient, rules.OutpatientServices},
		} {
			if len(enc.services) == 0 {
				continue
			}
			if contains(enc.services, claim.ServiceCode) {
				add("encounter_type", "Service %s is allowed for %s encounters.", claim.ServiceCode, enc.name)
			} else {
				add("encounter_type", "Service %s is not allowed for %s encounters.", claim.ServiceCode, enc.name)
			}
		}
	}
	switch claim.EncounterType {
	case model.EncounterInpatient:
		if len(rules.InpatientServices) > 0 {
			add("encounter_type", "Services allowed for INPATIENT encounters: %s", bracket(rules.InpatientServices))
		}
	case model.EncounterOutpatient:
		if len(rules.OutpatientServices) > 0 {
			add("encounter_type", "Services allowed for OUTPATIENT encounters: %s", bracket(rules.OutpatientServices))
		}
	}

	// Facility eligibility
	if claim.FacilityID != "" {
		if facilityType, ok := rules.FacilityRegistry[claim.FacilityID]; ok {
			allowed := rules.FacilityTypes[facilityType]
			add("facility", "Facility %s is of type %s. Services allowed at %s facilities: %s",
				claim.FacilityID, facilityType, facilityType, bracket(allowed))
		}
	}

	// Required diagnoses
	if required, ok := rules.ServiceDiagnosisRequirements[claim.ServiceCode]; ok && claim.ServiceCode != "" {
		add("service_diagnosis", "Service %s requires one of the diagnosis codes %s.", claim.ServiceCode, bracket(required))
	}

	// Exclusion groups touching the claim's diagnoses
	for _, group := range rules.MutuallyExclusiveDiagnoses {
		if !overlaps(group.Diagnoses, claim.DiagnosisCodes) {
			continue
		}
		reason := group.Reason
		if reason == "" {
			reason = "Cannot coexist"
		}
		add("mutually_exclusive", "Diagnoses %s are mutually exclusive. Reason: %s", bracket(group.Diagnoses), reason)
	}

	return out
}

func mentionsEncounter(snippets []RuleSnippet) bool {
	for _, s := range snippets {
		lower := strings.ToLower(s.Content)
		if strings.Contains(lower, "inpatient") || strings.Contains(lower, "outpatient") {
			return true
		}
	}
	return false
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

func bracket(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return "[" + strings.Join(sorted, ", ") + "]"
}
