package llm

import (
	"strings"
	"testing"

	"github.com/ppiankov/claimcheck/internal/model"
)

func testRuleSet() model.RuleSet {
	tech := model.DefaultTechnicalRules()
	tech.ServicesRequiringApproval = []string{"SRV1001"}
	tech.DiagnosesRequiringApproval = []string{"E11.9"}

	med := model.DefaultMedicalRules()
	med.InpatientServices = []string{"SRV1001"}
	med.OutpatientServices = []string{"SRV2001"}
	med.FacilityTypes = map[string][]string{"CLINIC": {"SRV2001"}}
	med.FacilityRegistry = map[string]string{"FAC1": "CLINIC"}
	med.ServiceDiagnosisRequirements = map[string][]string{"SRV1001": {"J45"}}
	med.MutuallyExclusiveDiagnoses = []model.ExclusionGroup{{Diagnoses: []string{"E11.9", "R73.03"}}}

	return model.RuleSet{Technical: tech, Medical: med}
}

func topics(snippets []RuleSnippet) map[string]int {
	out := make(map[string]int)
	for _, s := range snippets {
		out[s.Topic]++
	}
	return out
}

func TestRetrieve_CoversClaimCodes(t *testing.T) {
	claim := &model.Claim{
		EncounterType:  model.EncounterOutpatient,
		ServiceCode:    "SRV1001",
		FacilityID:     "FAC1",
		DiagnosisCodes: []string{"E11.9", "E11.9"},
	}

	snippets := NewRuleRetriever(0).Retrieve(claim, testRuleSet())
	got := topics(snippets)

	for _, topic := range []string{"service_approval", "diagnosis_approval", "encounter_type", "facility", "service_diagnosis", "mutually_exclusive"} {
		if got[topic] == 0 {
			t.Errorf("Expected a %s snippet, got %v", topic, got)
		}
	}
	if got[topicEncounterFallback] != 0 {
		t.Error("Fallback snippet should not be added when encounter rules are present")
	}
	if snippets[0].Kind != model.RuleKindTechnical {
		t.Error("Expected technical snippets first")
	}
	if !HasMedicalRules(snippets) {
		t.Error("Expected medical rules to be reported")
	}

	// Duplicate diagnosis codes produce one statement
	n := 0
	for _, s := range snippets {
		if strings.HasPrefix(s.Content, "Diagnosis code E11.9") {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Expected one statement for E11.9, got %d", n)
	}
}

func TestRetrieve_EncounterFallback(t *testing.T) {
	claim := &model.Claim{ServiceCode: "SRV9999"}
	snippets := NewRuleRetriever(0).Retrieve(claim, model.RuleSet{Technical: model.DefaultTechnicalRules()})

	last := snippets[len(snippets)-1]
	if last.Topic != topicEncounterFallback {
		t.Fatalf("Expected fallback snippet last, got %+v", last)
	}
	if HasMedicalRules(snippets) {
		t.Error("Fallback snippet must not count as a tenant medical rule")
	}
}

func TestRetrieve_TopK(t *testing.T) {
	claim := &model.Claim{
		ServiceCode:    "SRV1001",
		DiagnosisCodes: []string{"A1", "A2", "A3", "A4", "A5"},
	}
	snippets := NewRuleRetriever(3).Retrieve(claim, testRuleSet())
	if len(snippets) != 3 {
		t.Errorf("Expected 3 snippets, got %d", len(snippets))
	}
}

func TestSnippetStrings(t *testing.T) {
	got := SnippetStrings([]RuleSnippet{{Kind: model.RuleKindMedical, Content: "x"}})
	if len(got) != 1 || got[0] != "[MEDICAL] x" {
		t.Errorf("Unexpected rendering: %v", got)
	}
}

func TestBracketSorts(t *testing.T) {
	if got := bracket([]string{"b", "a"}); got != "[a, b]" {
		t.Errorf("Unexpected bracket output: %s", got)
	}
}
