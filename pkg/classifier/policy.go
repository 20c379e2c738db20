package classifier

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

// PolicyVerdict is a decision produced by an operator-supplied Rego policy.
// A nil verdict means the policy did not match and the built-in rules apply.
type PolicyVerdict struct {
	Tier model.Tier
	Unit string
	Note string
}

// PolicyEngine evaluates data.triage policies against a decision context
type PolicyEngine struct {
	query *rego.PreparedEvalQuery
}

// NewPolicyEngine loads all .rego files from policyDir and prepares the
// data.triage query. Returns nil when the directory holds no policies.
func NewPolicyEngine(ctx context.Context, policyDir string) (*PolicyEngine, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, nil
	}

	modules := make([]func(*rego.Rego), 0, len(files)+1)
	modules = append(modules, rego.Query("data.triage"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}

	query, err := rego.New(modules...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare triage policy")
	}

	return &PolicyEngine{query: &query}, nil
}

// NewPolicyEngineFromSource prepares a policy from an in-memory module,
// mainly for tests
func NewPolicyEngineFromSource(ctx context.Context, name, source string) (*PolicyEngine, error) {
	query, err := rego.New(
		rego.Query("data.triage"),
		rego.Module(name, source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare triage policy", goerr.V("module", name))
	}
	return &PolicyEngine{query: &query}, nil
}

// Eval runs the policy over the decision context. The policy sees the
// patient, the capacity snapshot, and the active knowledge categories, and
// may yield {"tier": n, "unit": "...", "note": "..."}.
func (e *PolicyEngine) Eval(ctx context.Context, dc *model.DecisionContext) (*PolicyVerdict, error) {
	resources := make(map[string]any, len(dc.Resources))
	for id, r := range dc.Resources {
		resources[string(id)] = map[string]any{
			"capacity_total":     r.CapacityTotal,
			"capacity_available": r.CapacityAvailable,
			"staff_available":    r.StaffAvailable,
		}
	}
	knowledge := make(map[string]string, len(dc.Knowledge))
	for _, s := range dc.Knowledge {
		knowledge[string(s.Category)] = s.Text
	}

	input := map[string]any{
		"patient": map[string]any{
			"id":        string(dc.Patient.ID),
			"complaint": dc.Patient.Complaint,
			"symptoms":  dc.Patient.Symptoms,
			"vitals":    dc.Patient.Vitals,
		},
		"resources": resources,
		"knowledge": knowledge,
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate triage policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, nil
	}
	tierVal, ok := data["tier"]
	if !ok {
		return nil, nil
	}

	verdict := &PolicyVerdict{
		Unit: getString(data, "unit"),
		Note: getString(data, "note"),
	}
	switch v := tierVal.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, goerr.Wrap(err, "policy tier is not an integer")
		}
		verdict.Tier = model.Tier(n)
	case float64:
		verdict.Tier = model.Tier(int(v))
	case int:
		verdict.Tier = model.Tier(v)
	default:
		return nil, goerr.New("policy tier has invalid type", goerr.V("tier", tierVal))
	}
	if err := verdict.Tier.Validate(); err != nil {
		return nil, err
	}

	return verdict, nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
