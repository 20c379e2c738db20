package triage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/triagent/pkg/classifier"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/repository"
	"github.com/m-mizutani/triagent/pkg/service/knowledge"
	"github.com/m-mizutani/triagent/pkg/service/resilience"
	"github.com/m-mizutani/triagent/pkg/service/resource"
	"github.com/m-mizutani/triagent/pkg/usecase/triage"
)

func patientEvent(id, complaint string) *model.Event {
	return &model.Event{Kind: model.EventPatient, Patient: patient(id, complaint, nil)}
}

func resourceState(unit model.UnitID, available int, ts time.Time) *model.ResourceState {
	return &model.ResourceState{
		UnitID: unit, CapacityTotal: 10, CapacityAvailable: available, StaffAvailable: 3, UpdatedAt: ts,
	}
}

// runPipeline applies the state updates before feeding patients, so each test
// asserts against a known snapshot rather than racing the state lanes
func runPipeline(t *testing.T, patients []*model.Event, resources []*model.ResourceState, updates []*model.KnowledgeUpdate) []*model.DecisionRecord {
	t.Helper()
	ctx := context.Background()

	log := repository.NewMemory()
	uc := triage.New(resource.New(), knowledge.New(), &failingClassifier{}, classifier.NewFallback(),
		resilience.New(time.Minute), log)

	for _, st := range resources {
		uc.ApplyResource(ctx, st)
	}
	for _, up := range updates {
		uc.PublishKnowledge(ctx, up)
	}

	patientCh := make(chan *model.Event, len(patients)+1)
	resourceCh := make(chan *model.Event)
	knowledgeCh := make(chan *model.Event)
	close(resourceCh)
	close(knowledgeCh)

	go func() {
		for _, ev := range patients {
			patientCh <- ev
		}
		close(patientCh)
	}()

	triage.NewPipeline(uc).Run(ctx, patientCh, resourceCh, knowledgeCh)

	records, err := log.List(ctx)
	gt.NoError(t, err)
	return records
}

func TestPipelineSurge(t *testing.T) {
	base := time.Now()

	var patients []*model.Event
	for i := 0; i < 50; i++ {
		patients = append(patients, patientEvent(fmt.Sprintf("P%03d", i), "cough and runny nose"))
	}

	records := runPipeline(t, patients,
		[]*model.ResourceState{resourceState("er", 12, base)}, nil)

	// Every patient event yields exactly one decision record
	gt.Equal(t, len(records), 50)
	seen := map[model.PatientID]bool{}
	for _, r := range records {
		gt.False(t, seen[r.PatientID])
		seen[r.PatientID] = true
		gt.Equal(t, r.Tier, model.TierMinor)
		gt.Equal(t, r.ClassifierUsed, model.ClassifierFallback)
	}
}

func TestPipelineStaleResourceIgnored(t *testing.T) {
	base := time.Now()

	records := runPipeline(t,
		[]*model.Event{patientEvent("P1", "crushing chest pain")},
		[]*model.ResourceState{
			resourceState(model.UnitICU, 0, base.Add(time.Minute)),
			// Stale row claiming free beds arrives after the newer one
			resourceState(model.UnitICU, 5, base),
		}, nil)

	gt.Equal(t, len(records), 1)
	gt.Equal(t, records[0].Tier, model.TierCritical)
	gt.Equal(t, records[0].RecommendedUnit, model.UnitStabilizeAndTransfer)
	gt.True(t, records[0].Overflow)
}

func TestPipelineKnowledgeReachesClassifier(t *testing.T) {
	base := time.Now()

	records := runPipeline(t,
		[]*model.Event{patientEvent("P1", "sudden anaphylactic reaction")},
		[]*model.ResourceState{resourceState(model.UnitICU, 2, base)},
		[]*model.KnowledgeUpdate{{
			Snippets:  []*model.KnowledgeSnippet{{Category: model.CategoryCritical, Text: "Escalate:\n- anaphylactic reaction"}},
			VersionAt: base,
		}})

	gt.Equal(t, len(records), 1)
	gt.Equal(t, records[0].Tier, model.TierCritical)
	gt.Equal(t, records[0].RecommendedUnit, "icu")
}

func TestPipelineDuplicateEvents(t *testing.T) {
	records := runPipeline(t,
		[]*model.Event{
			patientEvent("P1", "broken thumb"),
			patientEvent("P1", "broken thumb"),
			patientEvent("P2", "broken thumb"),
		}, nil, nil)

	gt.Equal(t, len(records), 2)
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	log := repository.NewMemory()
	uc := triage.New(resource.New(), knowledge.New(), nil, classifier.NewFallback(),
		resilience.New(time.Minute), log)

	patientCh := make(chan *model.Event)
	resourceCh := make(chan *model.Event)
	knowledgeCh := make(chan *model.Event)

	done := make(chan struct{})
	go func() {
		triage.NewPipeline(uc).Run(ctx, patientCh, resourceCh, knowledgeCh)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop on cancellation")
	}
}
