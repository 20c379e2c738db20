package triage

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/classifier"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/utils/logging"
)

// HandlePatient runs one patient event through assembly, classification, and
// the audit sink. Every valid event yields exactly one decision record, even
// when the primary classifier is unavailable; only a failed audit write can
// make the attempt fail.
func (u *UseCase) HandlePatient(ctx context.Context, p *model.PatientEvent) (*model.DecisionRecord, error) {
	if !u.begin(p.ID) {
		logging.From(ctx).Debug("suppressed duplicate patient event", "patient_id", p.ID)
		return nil, nil
	}
	settled := false
	defer func() {
		u.end(p.ID, settled)
	}()

	dc := u.assemble(p)
	result, kind := u.classify(ctx, dc)
	record := u.buildRecord(dc, result, kind)

	if err := u.persist(ctx, record); err != nil {
		return nil, err
	}
	settled = true

	if record.Tier == model.TierCritical && u.notifier != nil {
		// Best-effort alert; the audit record is already durable
		if err := u.notifier.Notify(ctx, record); err != nil {
			logging.From(ctx).Warn("failed to dispatch tier-1 alert",
				"patient_id", record.PatientID, "error", err)
		}
	}

	logging.From(ctx).Info("decision recorded",
		"patient_id", record.PatientID,
		"tier", int(record.Tier),
		"unit", record.RecommendedUnit,
		"classifier", record.ClassifierUsed)

	return record, nil
}

// classify arbitrates between the primary and fallback tiers. A primary
// failure is absorbed here: it degrades the resilience state and falls back,
// never surfacing to the event pipeline.
func (u *UseCase) classify(ctx context.Context, dc *model.DecisionContext) (*classifier.Result, model.ClassifierKind) {
	if u.primary != nil && u.health.Route() == model.ClassifierPrimary {
		result, err := u.primary.Classify(ctx, dc)
		if err == nil {
			u.health.ReportSuccess()
			return result, model.ClassifierPrimary
		}
		u.health.ReportFailure()
		logging.From(ctx).Warn("primary classifier failed, entering degraded mode",
			"patient_id", dc.Patient.ID, "error", err)
	}

	// The fallback is a pure function and cannot fail on a valid context
	result, err := u.fallback.Classify(ctx, dc)
	if err != nil {
		logging.From(ctx).Error("fallback classifier failed", "patient_id", dc.Patient.ID, "error", err)
		result = &classifier.Result{
			Tier:            model.TierUrgent,
			RecommendedUnit: model.UnitStabilizeAndTransfer,
			Overflow:        true,
			Justification:   "classification unavailable, manual review required",
		}
	}
	return result, model.ClassifierFallback
}

// buildRecord freezes a classification into an immutable audit record and
// enforces the capacity invariant: a concrete unit with no availability at
// context-construction time always carries the overflow marker.
func (u *UseCase) buildRecord(dc *model.DecisionContext, result *classifier.Result, kind model.ClassifierKind) *model.DecisionRecord {
	record := &model.DecisionRecord{
		ID:              model.NewDecisionID(),
		PatientID:       dc.Patient.ID,
		Tier:            result.Tier,
		RecommendedUnit: result.RecommendedUnit,
		Overflow:        result.Overflow,
		Justification:   result.Justification,
		ClassifierUsed:  kind,
		DecidedAt:       u.clock(),
	}

	if r, ok := dc.Resource(model.UnitID(record.RecommendedUnit)); ok && r.CapacityAvailable <= 0 {
		record.RecommendedUnit = model.UnitStabilizeAndTransfer
		record.Overflow = true
	}
	return record
}

// persist retries the audit write until it succeeds or the record is
// dead-lettered. The audit record is the only durable evidence a decision
// occurred, so nothing short of that counts as progress.
func (u *UseCase) persist(ctx context.Context, record *model.DecisionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= u.appendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.appendBackoff * time.Duration(attempt)):
			}
		}
		if lastErr = u.log.Append(ctx, record); lastErr == nil {
			return nil
		}
		logging.From(ctx).Warn("audit write failed",
			"patient_id", record.PatientID, "attempt", attempt+1, "error", lastErr)
	}

	if u.deadLetter != nil {
		if err := u.deadLetter.Append(ctx, record); err == nil {
			logging.From(ctx).Error("decision dead-lettered after audit failures",
				"patient_id", record.PatientID, "error", lastErr)
			return nil
		}
	}
	return goerr.Wrap(lastErr, "audit write exhausted retries", goerr.V("patient_id", record.PatientID))
}

// begin claims a patient event. False means a decision for this event is
// already in flight or done; at-most-one record per event is enforced by
// patient identity, not by call completion order.
func (u *UseCase) begin(id model.PatientID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.done[id]; ok {
		return false
	}
	if _, ok := u.inflight[id]; ok {
		return false
	}
	u.inflight[id] = struct{}{}
	return true
}

func (u *UseCase) end(id model.PatientID, settled bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	delete(u.inflight, id)
	if settled {
		u.done[id] = struct{}{}
	}
}
