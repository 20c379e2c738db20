// Package repository provides the append-only decision audit log. The log is
// the only durable evidence a decision occurred; everything else in the
// pipeline is rebuildable from the feeds.
package repository

import (
	"context"

	"github.com/m-mizutani/triagent/pkg/model"
)

// DecisionLog defines the interface for decision record persistence
type DecisionLog interface {
	// Append writes one immutable decision record. Records are never
	// updated or deleted afterward.
	Append(ctx context.Context, record *model.DecisionRecord) error

	// List returns all records in append order
	List(ctx context.Context) ([]*model.DecisionRecord, error)
}
