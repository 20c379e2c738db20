package classifier

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"sort"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/adapter"
	"github.com/m-mizutani/triagent/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/triage.md
var triagePromptRaw string

var triagePromptTmpl = template.Must(template.New("triage").Parse(triagePromptRaw))

// Primary delegates classification to the Gemini reasoning capability with a
// bounded timeout. It is fallible and possibly slow; arbitration between it
// and the fallback belongs to the resilience manager, not here.
type Primary struct {
	gemini  adapter.Gemini
	timeout time.Duration
}

type PrimaryOption func(*Primary)

// WithTimeout bounds a single classification call
func WithTimeout(d time.Duration) PrimaryOption {
	return func(p *Primary) {
		p.timeout = d
	}
}

// NewPrimary creates a Primary classifier
func NewPrimary(gemini adapter.Gemini, opts ...PrimaryOption) *Primary {
	p := &Primary{
		gemini:  gemini,
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type triageResponse struct {
	Tier          int    `json:"tier"`
	Unit          string `json:"unit"`
	Overflow      bool   `json:"overflow"`
	Justification string `json:"justification"`
}

func (p *Primary) Classify(ctx context.Context, dc *model.DecisionContext) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt, err := p.buildPrompt(dc)
	if err != nil {
		return nil, err
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tier": {
					Type:        genai.TypeInteger,
					Description: "Priority tier, 1 (most severe) to 5",
				},
				"unit": {
					Type:        genai.TypeString,
					Description: "Recommended unit ID, or stabilize-and-transfer when no capacity fits",
				},
				"overflow": {
					Type:        genai.TypeBoolean,
					Description: "True when the ideal unit had no available capacity",
				},
				"justification": {
					Type:        genai.TypeString,
					Description: "Short reasoning for the decision",
				},
			},
			Required: []string{"tier", "unit", "justification"},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := p.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "primary classification failed", goerr.V("patient_id", dc.Patient.ID))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, goerr.New("invalid response structure from gemini", goerr.V("patient_id", dc.Patient.ID))
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text = part.Text
			break
		}
	}

	var parsed triageResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to parse triage response", goerr.V("response", text))
	}

	result := &Result{
		Tier:            model.Tier(parsed.Tier),
		RecommendedUnit: parsed.Unit,
		Overflow:        parsed.Overflow,
		Justification:   parsed.Justification,
	}
	if err := result.Tier.Validate(); err != nil {
		return nil, err
	}
	if result.RecommendedUnit == model.UnitStabilizeAndTransfer {
		result.Overflow = true
	}

	return result, nil
}

func (p *Primary) buildPrompt(dc *model.DecisionContext) (string, error) {
	vitalsJSON, err := json.Marshal(dc.Patient.Vitals)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal vitals")
	}
	labsJSON, err := json.Marshal(dc.Patient.Labs)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal labs")
	}

	// Stable ordering keeps prompts reproducible for identical contexts
	resources := make([]*model.ResourceState, 0, len(dc.Resources))
	for _, r := range dc.Resources {
		resources = append(resources, r)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].UnitID < resources[j].UnitID })

	var buf bytes.Buffer
	if err := triagePromptTmpl.Execute(&buf, map[string]any{
		"Patient":    dc.Patient,
		"Resources":  resources,
		"Knowledge":  dc.Knowledge,
		"VitalsJSON": string(vitalsJSON),
		"LabsJSON":   string(labsJSON),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute triage prompt template")
	}
	return buf.String(), nil
}
