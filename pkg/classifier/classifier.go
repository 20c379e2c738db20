// Package classifier implements the two-tier classification engine: a
// reasoning-capable primary backed by Gemini and a deterministic rule-based
// fallback. Both satisfy the same Classifier contract and are substitutable.
package classifier

import (
	"context"

	"github.com/m-mizutani/triagent/pkg/model"
)

// Result is the outcome of one classification. RecommendedUnit is either a
// concrete unit ID or model.UnitStabilizeAndTransfer with Overflow set.
type Result struct {
	Tier            model.Tier
	RecommendedUnit string
	Overflow        bool
	Justification   string
}

// Classifier produces a priority tier and resource recommendation for one
// decision context
type Classifier interface {
	Classify(ctx context.Context, dc *model.DecisionContext) (*Result, error)
}
