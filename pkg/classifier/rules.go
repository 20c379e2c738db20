package classifier

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Rules are the static protocol thresholds used by the fallback classifier.
// Operators can override them with a YAML file; the defaults mirror the
// facility's baseline triage criteria.
type Rules struct {
	CriticalKeywords []string `yaml:"critical_keywords"`
	UrgentKeywords   []string `yaml:"urgent_keywords"`
	StandardKeywords []string `yaml:"standard_keywords"`

	FeverThreshold float64 `yaml:"fever_threshold"`
	SpO2Floor      float64 `yaml:"spo2_floor"`
	TachycardiaHR  float64 `yaml:"tachycardia_hr"`

	// ICUUnits are tried in order for tier-1 placement
	ICUUnits []string `yaml:"icu_units"`
}

// DefaultRules returns the built-in protocol thresholds
func DefaultRules() *Rules {
	return &Rules{
		CriticalKeywords: []string{
			"cardiac arrest",
			"respiratory failure",
			"respiratory distress",
			"difficulty breathing",
			"not breathing",
			"stroke",
			"slurred speech",
			"facial droop",
			"chest pain",
			"unresponsive",
			"severe bleeding",
		},
		UrgentKeywords: []string{
			"severe pain",
			"dehydration",
			"altered mental status",
			"confusion",
			"high fever",
		},
		StandardKeywords: []string{
			"fracture",
			"broken",
			"abdominal pain",
			"laceration",
		},
		FeverThreshold: 40.0,
		SpO2Floor:      90.0,
		TachycardiaHR:  130.0,
		ICUUnits:       []string{"icu", "resus"},
	}
}

// LoadRules reads a YAML overrides file on top of the defaults. Only fields
// present in the file replace defaults.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read rules file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, goerr.Wrap(err, "failed to parse rules file", goerr.V("path", path))
	}
	return rules, nil
}
