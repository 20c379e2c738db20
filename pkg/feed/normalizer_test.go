package feed_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/triagent/pkg/feed"
	"github.com/m-mizutani/triagent/pkg/model"
)

func TestNormalizePatient(t *testing.T) {
	n := feed.New()

	raw := `{"patient_id":"P2001","name":"Alice Wonderland","symptoms":"Severe headache, slurred speech","vitals":{"bp":"180/100","hr":90,"spo2":95},"labs":{}}`
	ev, err := n.Patient([]byte(raw))
	gt.NoError(t, err)
	gt.Equal(t, ev.Kind, model.EventPatient)
	gt.Equal(t, ev.Patient.ID, model.PatientID("P2001"))

	// chief_complaint falls back to free-text symptoms
	gt.Equal(t, ev.Patient.Complaint, "Severe headache, slurred speech")

	hr, ok := ev.Patient.Vital("hr")
	gt.True(t, ok)
	gt.Equal(t, hr, 90.0)

	_, ok = ev.Patient.Vital("bp")
	gt.False(t, ok)
}

func TestNormalizePatientMalformed(t *testing.T) {
	n := feed.New()

	for _, raw := range []string{
		`{not json`,
		`{"patient_id":"P1","vitals":{}}`,
	} {
		_, err := n.Patient([]byte(raw))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrMalformedData))
	}
}

func TestNormalizeResource(t *testing.T) {
	n := feed.New()

	raw := `{"unit_id":"er","capacity_total":20,"capacity_available":7,"staff_available":5,"timestamp":"2025-06-01T10:00:00Z"}`
	ev, err := n.Resource([]byte(raw))
	gt.NoError(t, err)
	gt.Equal(t, ev.Kind, model.EventResource)
	gt.Equal(t, ev.Resource.UnitID, model.UnitID("er"))
	gt.Equal(t, ev.Resource.CapacityAvailable, 7)
	gt.Equal(t, ev.Resource.UpdatedAt, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
}

func TestNormalizeResourceLegacyICU(t *testing.T) {
	n := feed.New()

	raw := `{"timestamp":"2025-06-01T10:00:00Z","icu_beds_total":10,"icu_beds_available":2,"doctors_on_call":["Dr. Smith","Dr. Lee"],"nurses_available":6}`
	ev, err := n.Resource([]byte(raw))
	gt.NoError(t, err)
	gt.Equal(t, ev.Resource.UnitID, model.UnitICU)
	gt.Equal(t, ev.Resource.CapacityTotal, 10)
	gt.Equal(t, ev.Resource.CapacityAvailable, 2)
	gt.Equal(t, ev.Resource.StaffAvailable, 8)
}

func TestNormalizeResourceZeroAvailable(t *testing.T) {
	n := feed.New()

	// available=0 must survive normalization, it is not a missing field
	ev, err := n.Resource([]byte(`{"unit_id":"icu","capacity_total":10,"capacity_available":0,"staff_available":3}`))
	gt.NoError(t, err)
	gt.Equal(t, ev.Resource.CapacityAvailable, 0)

	_, err = n.Resource([]byte(`{"unit_id":"icu","capacity_total":10}`))
	gt.Error(t, err)
}

func TestNormalizeGuidelines(t *testing.T) {
	n := feed.New()
	versionAt := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	doc := `# Triage Protocol

## Critical
Cardiac arrest, respiratory failure.

## High
Fever above 40C.

## Resource Rules
Tier 1 always targets ICU first.
`
	ev := n.Guidelines(doc, versionAt)
	gt.Equal(t, ev.Kind, model.EventKnowledge)
	gt.Equal(t, ev.Knowledge.VersionAt, versionAt)
	gt.Equal(t, len(ev.Knowledge.Snippets), 4)

	byCategory := map[model.KnowledgeCategory]string{}
	for _, s := range ev.Knowledge.Snippets {
		byCategory[s.Category] = s.Text
	}
	gt.Equal(t, byCategory[model.CategoryCritical], "Cardiac arrest, respiratory failure.")
	gt.Equal(t, byCategory[model.CategoryResourceRules], "Tier 1 always targets ICU first.")
}
