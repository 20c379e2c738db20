package triage

import (
	"context"
	"sync"

	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/utils/logging"
)

// Pipeline drives the three ingestion lanes over a UseCase. Each source is a
// sequential lane preserving per-source order; patient events additionally
// fan out to per-event goroutines, since there is no cross-patient ordering
// requirement.
type Pipeline struct {
	uc *UseCase
}

// NewPipeline creates a Pipeline over uc
func NewPipeline(uc *UseCase) *Pipeline {
	return &Pipeline{uc: uc}
}

// Run consumes the three event channels until ctx is cancelled or all
// channels are closed. State-update lanes apply events in arrival order;
// patient classification runs concurrently across distinct patients.
func (p *Pipeline) Run(ctx context.Context, patients, resources, knowledge <-chan *model.Event) {
	var lanes sync.WaitGroup
	var workers sync.WaitGroup

	lanes.Add(1)
	go func() {
		defer lanes.Done()
		for ev := range recv(ctx, resources) {
			p.uc.ApplyResource(ctx, ev.Resource)
		}
	}()

	lanes.Add(1)
	go func() {
		defer lanes.Done()
		for ev := range recv(ctx, knowledge) {
			p.uc.PublishKnowledge(ctx, ev.Knowledge)
		}
	}()

	lanes.Add(1)
	go func() {
		defer lanes.Done()
		for ev := range recv(ctx, patients) {
			workers.Add(1)
			go func(patient *model.PatientEvent) {
				defer workers.Done()
				if _, err := p.uc.HandlePatient(ctx, patient); err != nil {
					logging.From(ctx).Error("patient event processing failed",
						"patient_id", patient.ID, "error", err)
				}
			}(ev.Patient)
		}
	}()

	lanes.Wait()
	workers.Wait()
}

// recv adapts a channel to stop on context cancellation without leaking the
// lane goroutine
func recv(ctx context.Context, ch <-chan *model.Event) <-chan *model.Event {
	out := make(chan *model.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case out <- ev:
				}
			}
		}
	}()
	return out
}
