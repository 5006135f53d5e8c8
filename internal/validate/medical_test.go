package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/model"
)

func medicalRules() *model.MedicalRules {
	return &model.MedicalRules{
		InpatientServices:  []string{"SRV1001", "SRV1002"},
		OutpatientServices: []string{"SRV2001", "SRV2002"},
		FacilityTypes: map[string][]string{
			"CLINIC":   {"SRV2001"},
			"HOSPITAL": {"SRV1001", "SRV1002", "SRV2001", "SRV2002"},
		},
		FacilityRegistry: map[string]string{
			"FAC-CLINIC-1": "CLINIC",
			"FAC-HOSP-1":   "HOSPITAL",
		},
		ServiceDiagnosisRequirements: map[string][]string{
			"SRV2002": {"E11.9", "E66.9"},
		},
		MutuallyExclusiveDiagnoses: []model.ExclusionGroup{
			{Diagnoses: []string{"R73.03", "E11.9"}, Reason: "Prediabetes and diabetes are exclusive"},
			{Diagnoses: []string{"J45", "J44"}},
		},
	}
}

func TestMedical_EncounterTypeRestriction(t *testing.T) {
	engine := NewMedicalEngine(medicalRules())

	claim := &model.Claim{EncounterType: model.EncounterInpatient, ServiceCode: "SRV2001"}
	errs := engine.Validate(claim)

	require.Len(t, errs, 1)
	assert.Equal(t, "Service-Encounter Type Restriction", errs[0].RuleName)
	assert.Equal(t, "Service code SRV2001 is not allowed for INPATIENT encounters. Allowed services: [SRV1001, SRV1002]", errs[0].Detail)
}

func TestMedical_EncounterTypeUnsetIsIgnored(t *testing.T) {
	engine := NewMedicalEngine(medicalRules())

	errs := engine.Validate(&model.Claim{ServiceCode: "SRV9999"})
	assert.Empty(t, errs)
}

func TestMedical_FacilityEligibility(t *testing.T) {
	engine := NewMedicalEngine(medicalRules())

	claim := &model.Claim{
		EncounterType: model.EncounterInpatient,
		ServiceCode:   "SRV1001",
		FacilityID:    "FAC-CLINIC-1",
	}
	errs := engine.Validate(claim)

	require.Len(t, errs, 1)
	assert.Equal(t, "Facility-Service Eligibility", errs[0].RuleName)
	assert.Contains(t, errs[0].Detail, "(type: CLINIC)")
}

func TestMedical_UnregisteredFacilityAllowed(t *testing.T) {
	engine := NewMedicalEngine(medicalRules())

	claim := &model.Claim{
		EncounterType: model.EncounterInpatient,
		ServiceCode:   "SRV1001",
		FacilityID:    "FAC-UNKNOWN",
	}
	assert.Empty(t, engine.Validate(claim))
}

func TestMedical_ServiceDiagnosisRequirement(t *testing.T) {
	engine := NewMedicalEngine(medicalRules())

	claim := &model.Claim{
		EncounterType:  model.EncounterOutpatient,
		ServiceCode:    "SRV2002",
		DiagnosisCodes: []string{"J45"},
	}
	errs := engine.Validate(claim)

	require.Len(t, errs, 1)
	assert.Equal(t, "Service-Diagnosis Requirement", errs[0].RuleName)
	assert.Equal(t, "Service code SRV2002 requires one of the following diagnosis codes: [E11.9, E66.9], but found: [J45]", errs[0].Detail)

	claim.DiagnosisCodes = []string{"J45", "E66.9"}
	assert.Empty(t, engine.Validate(claim))
}

func TestMedical_MutuallyExclusiveDiagnoses(t *testing.T) {
	engine := NewMedicalEngine(medicalRules())

	claim := &model.Claim{DiagnosisCodes: []string{"E11.9", "R73.03", "J45", "J44"}}
	errs := engine.Validate(claim)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Detail, "Reason: Prediabetes and diabetes are exclusive")
	assert.Contains(t, errs[1].Detail, "Reason: Cannot coexist")
}

func TestMedical_AllChecksRun(t *testing.T) {
	engine := NewMedicalEngine(medicalRules())

	claim := &model.Claim{
		EncounterType:  model.EncounterInpatient,
		ServiceCode:    "SRV2002",
		FacilityID:     "FAC-CLINIC-1",
		DiagnosisCodes: []string{"J45", "J44"},
	}
	errs := engine.Validate(claim)

	assert.Equal(t, []string{
		"Service-Encounter Type Restriction",
		"Facility-Service Eligibility",
		"Service-Diagnosis Requirement",
		"Mutually Exclusive Diagnoses",
	}, ruleNames(errs))
}

func TestMedical_DefaultRulesProduceNoErrorsWithoutEncounter(t *testing.T) {
	engine := NewMedicalEngine(nil)
	assert.Empty(t, engine.Validate(&model.Claim{ServiceCode: "SRV1001", DiagnosisCodes: []string{"J45"}}))
}
