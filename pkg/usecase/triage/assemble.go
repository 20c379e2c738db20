package triage

import (
	"context"

	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/utils/logging"
)

// assemble joins one patient event with point-in-time snapshots of the two
// state stores. Both snapshots are taken at dequeue time; the assembler never
// waits for fresher state, so the guarantee is recency, not linearizability.
func (u *UseCase) assemble(p *model.PatientEvent) *model.DecisionContext {
	return &model.DecisionContext{
		Patient:     p,
		Resources:   u.resources.Snapshot(),
		Knowledge:   u.knowledge.ActiveSnapshot(),
		AssembledAt: u.clock(),
	}
}

// ApplyResource installs a capacity update into the state table. Stale
// updates are discarded silently, which guards against out-of-order delivery.
func (u *UseCase) ApplyResource(ctx context.Context, state *model.ResourceState) {
	if !u.resources.ApplyUpdate(state) {
		logging.From(ctx).Debug("discarded stale resource update",
			"unit", state.UnitID, "timestamp", state.UpdatedAt)
		return
	}
	logging.From(ctx).Info("applied resource update",
		"unit", state.UnitID, "available", state.CapacityAvailable, "staff", state.StaffAvailable)
}

// PublishKnowledge atomically replaces the active protocol set
func (u *UseCase) PublishKnowledge(ctx context.Context, update *model.KnowledgeUpdate) {
	if !u.knowledge.PublishVersion(update.Snippets, update.VersionAt) {
		logging.From(ctx).Debug("discarded stale knowledge publish", "version", update.VersionAt)
		return
	}
	logging.From(ctx).Info("published protocol version",
		"version", update.VersionAt, "snippets", len(update.Snippets))
}
