package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidTier   = goerr.New("invalid priority tier")
	ErrMalformedData = goerr.New("malformed input record")
	ErrStaleUpdate   = goerr.New("stale state update")
)

// Tier classifies urgency of care: 1 (most severe) through 5.
type Tier int

const (
	TierCritical Tier = 1
	TierUrgent   Tier = 2
	TierStandard Tier = 3
	TierMinor    Tier = 4
	TierRoutine  Tier = 5
)

// Validate checks if the tier is within the 1-5 range
func (t Tier) Validate() error {
	if t < TierCritical || t > TierRoutine {
		return goerr.Wrap(ErrInvalidTier, "out of range", goerr.V("tier", int(t)))
	}
	return nil
}

type ClassifierKind string

const (
	ClassifierPrimary  ClassifierKind = "primary"
	ClassifierFallback ClassifierKind = "fallback"
)

type DecisionID string

// NewDecisionID generates a new unique DecisionID
func NewDecisionID() DecisionID {
	return DecisionID(uuid.New().String())
}

// DecisionContext joins one patient event with point-in-time snapshots of the
// two state stores. It lives only for the duration of one classification and
// is never persisted.
type DecisionContext struct {
	Patient     *PatientEvent
	Resources   map[UnitID]*ResourceState
	Knowledge   []*KnowledgeSnippet
	AssembledAt time.Time
}

// Resource looks up a unit in the context's capacity snapshot.
func (c *DecisionContext) Resource(id UnitID) (*ResourceState, bool) {
	r, ok := c.Resources[id]
	return r, ok
}

// Snippet returns the active protocol text for a category, or "" when the
// store has never been published (cold start).
func (c *DecisionContext) Snippet(category KnowledgeCategory) string {
	for _, s := range c.Knowledge {
		if s.Category == category {
			return s.Text
		}
	}
	return ""
}

// DecisionRecord is the immutable audit entry for one patient event.
// Append-only; never mutated or deleted after it is written.
type DecisionRecord struct {
	ID              DecisionID     `json:"id"`
	PatientID       PatientID      `json:"patient_id"`
	Tier            Tier           `json:"priority_tier"`
	RecommendedUnit string         `json:"recommended_unit"`
	Overflow        bool           `json:"overflow,omitempty"`
	Justification   string         `json:"justification"`
	ClassifierUsed  ClassifierKind `json:"classifier_used"`
	DecidedAt       time.Time      `json:"decision_timestamp"`
}

// Validate checks the record before it reaches the audit log
func (r *DecisionRecord) Validate() error {
	if r.PatientID == "" {
		return goerr.New("decision record without patient ID")
	}
	if err := r.Tier.Validate(); err != nil {
		return err
	}
	switch r.ClassifierUsed {
	case ClassifierPrimary, ClassifierFallback:
	default:
		return goerr.New("invalid classifier kind", goerr.V("kind", r.ClassifierUsed))
	}
	return nil
}
