package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/triagent/pkg/model"
)

// Fallback is the deterministic rule-based classifier. It is a pure function
// over the decision context and never fails, which is what lets the pipeline
// guarantee a decision for every patient event.
type Fallback struct {
	rules  *Rules
	policy *PolicyEngine
}

type FallbackOption func(*Fallback)

// WithRules replaces the built-in protocol thresholds
func WithRules(rules *Rules) FallbackOption {
	return func(f *Fallback) {
		f.rules = rules
	}
}

// WithPolicy attaches an operator-supplied Rego policy that takes precedence
// over the built-in keyword table when it yields a decision
func WithPolicy(policy *PolicyEngine) FallbackOption {
	return func(f *Fallback) {
		f.policy = policy
	}
}

// NewFallback creates a Fallback classifier
func NewFallback(opts ...FallbackOption) *Fallback {
	f := &Fallback{
		rules: DefaultRules(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fallback) Classify(ctx context.Context, dc *model.DecisionContext) (*Result, error) {
	if f.policy != nil {
		verdict, err := f.policy.Eval(ctx, dc)
		if err != nil {
			return nil, err
		}
		if verdict != nil {
			return f.fromVerdict(verdict, dc), nil
		}
	}

	tier, reason := f.assess(dc)
	unit, overflow := f.recommend(tier, dc)

	return &Result{
		Tier:            tier,
		RecommendedUnit: unit,
		Overflow:        overflow,
		Justification:   reason,
	}, nil
}

// assess applies keywords and vitals thresholds. When criteria from several
// tiers match, the most severe (lowest-numbered) tier wins.
func (f *Fallback) assess(dc *model.DecisionContext) (model.Tier, string) {
	p := dc.Patient
	text := strings.ToLower(p.Complaint + " " + p.Symptoms)

	matched := map[model.Tier][]string{}
	addMatches(matched, model.TierCritical, text, f.criticalKeywords(dc))
	addMatches(matched, model.TierUrgent, text, f.rules.UrgentKeywords)
	addMatches(matched, model.TierStandard, text, f.rules.StandardKeywords)

	if spo2, ok := p.Vital("spo2"); ok && spo2 < f.rules.SpO2Floor {
		matched[model.TierCritical] = append(matched[model.TierCritical], fmt.Sprintf("spo2 %.0f below %.0f", spo2, f.rules.SpO2Floor))
	}
	if hr, ok := p.Vital("hr"); ok && hr > f.rules.TachycardiaHR {
		matched[model.TierUrgent] = append(matched[model.TierUrgent], fmt.Sprintf("heart rate %.0f above %.0f", hr, f.rules.TachycardiaHR))
	}
	if temp, ok := p.Vital("temp"); ok && temp > f.rules.FeverThreshold {
		matched[model.TierUrgent] = append(matched[model.TierUrgent], fmt.Sprintf("temperature %.1f above %.1f", temp, f.rules.FeverThreshold))
	}

	for _, tier := range []model.Tier{model.TierCritical, model.TierUrgent, model.TierStandard} {
		if reasons := matched[tier]; len(reasons) > 0 {
			return tier, "matched criteria: " + strings.Join(reasons, "; ")
		}
	}
	return model.TierMinor, "no acute criteria matched"
}

// criticalKeywords merges the static tier-1 keywords with any bullet items
// from the active "critical" protocol snippet. With an unpublished knowledge
// store this is just the static list.
func (f *Fallback) criticalKeywords(dc *model.DecisionContext) []string {
	keywords := f.rules.CriticalKeywords
	text := dc.Snippet(model.CategoryCritical)
	if text == "" {
		return keywords
	}

	merged := append([]string{}, keywords...)
	for _, line := range strings.Split(text, "\n") {
		item, ok := strings.CutPrefix(strings.TrimSpace(line), "- ")
		if !ok {
			continue
		}
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" && len(item) <= 64 {
			merged = append(merged, item)
		}
	}
	return merged
}

// recommend picks a unit for the tier. Availability only shapes the
// recommendation; the tier is never downgraded for lack of capacity.
func (f *Fallback) recommend(tier model.Tier, dc *model.DecisionContext) (string, bool) {
	if tier == model.TierCritical {
		for _, name := range f.rules.ICUUnits {
			if r, ok := dc.Resource(model.UnitID(name)); ok && r.CapacityAvailable > 0 {
				return name, false
			}
		}
		return model.UnitStabilizeAndTransfer, true
	}

	// Lower tiers take the most available non-ICU unit
	icu := map[string]bool{}
	for _, name := range f.rules.ICUUnits {
		icu[name] = true
	}

	var best *model.ResourceState
	units := make([]string, 0, len(dc.Resources))
	for id := range dc.Resources {
		units = append(units, string(id))
	}
	sort.Strings(units)
	for _, id := range units {
		r := dc.Resources[model.UnitID(id)]
		if icu[id] || r.CapacityAvailable <= 0 {
			continue
		}
		if best == nil || r.CapacityAvailable > best.CapacityAvailable {
			best = r
		}
	}
	if best != nil {
		return string(best.UnitID), false
	}
	return model.UnitStabilizeAndTransfer, true
}

func (f *Fallback) fromVerdict(v *PolicyVerdict, dc *model.DecisionContext) *Result {
	res := &Result{
		Tier:          v.Tier,
		Justification: v.Note,
	}
	if res.Justification == "" {
		res.Justification = "triage policy decision"
	}
	if v.Unit != "" {
		res.RecommendedUnit = v.Unit
		if r, ok := dc.Resource(model.UnitID(v.Unit)); ok && r.CapacityAvailable <= 0 {
			res.RecommendedUnit = model.UnitStabilizeAndTransfer
			res.Overflow = true
		}
		return res
	}
	res.RecommendedUnit, res.Overflow = f.recommend(v.Tier, dc)
	return res
}

func addMatches(matched map[model.Tier][]string, tier model.Tier, text string, keywords []string) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			matched[tier] = append(matched[tier], kw)
		}
	}
}
