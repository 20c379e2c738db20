package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/adapter"
	"github.com/m-mizutani/triagent/pkg/classifier"
	"github.com/m-mizutani/triagent/pkg/notify"
	"github.com/m-mizutani/triagent/pkg/repository"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Feeds
	patientsFile   string
	resourcesFile  string
	guidelinesFile string
	replayHistory  bool

	// Decision sink
	outputFile   string
	deadLetter   string
	mirrorBucket string

	// Classifier
	geminiProject  string
	geminiLocation string
	geminiModel    string
	primaryTimeout time.Duration
	cooldown       time.Duration
	rulesFile      string
	policyDir      string

	// Alerts
	webhookURL string
}

// feedFlags returns flags for the three input feeds with destination config
func feedFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "patients",
			Usage:       "Path to the patient intake JSONL feed",
			Value:       "data/patients.jsonl",
			Sources:     cli.EnvVars("TRIAGENT_PATIENTS_FILE"),
			Destination: &cfg.patientsFile,
		},
		&cli.StringFlag{
			Name:        "resources",
			Usage:       "Path to the capacity update JSONL feed",
			Value:       "data/resources.jsonl",
			Sources:     cli.EnvVars("TRIAGENT_RESOURCES_FILE"),
			Destination: &cfg.resourcesFile,
		},
		&cli.StringFlag{
			Name:        "guidelines",
			Usage:       "Path to the protocol guidelines document",
			Value:       "data/guidelines.md",
			Sources:     cli.EnvVars("TRIAGENT_GUIDELINES_FILE"),
			Destination: &cfg.guidelinesFile,
		},
		&cli.BoolFlag{
			Name:        "replay",
			Usage:       "Replay feed history from the start instead of tailing",
			Destination: &cfg.replayHistory,
		},
	}
}

// sinkFlags returns flags for the audit log and alert channel
func sinkFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Path to the append-only decision log",
			Value:       "output/decisions.jsonl",
			Sources:     cli.EnvVars("TRIAGENT_OUTPUT_FILE"),
			Destination: &cfg.outputFile,
		},
		&cli.StringFlag{
			Name:        "dead-letter",
			Usage:       "Path to the dead-letter log for failed audit writes",
			Value:       "output/deadletter.jsonl",
			Sources:     cli.EnvVars("TRIAGENT_DEAD_LETTER_FILE"),
			Destination: &cfg.deadLetter,
		},
		&cli.StringFlag{
			Name:        "mirror-bucket",
			Usage:       "Cloud Storage bucket to mirror decision log segments to",
			Sources:     cli.EnvVars("TRIAGENT_MIRROR_BUCKET"),
			Destination: &cfg.mirrorBucket,
		},
		&cli.StringFlag{
			Name:        "alert-webhook",
			Usage:       "Webhook URL for tier-1 alerts",
			Sources:     cli.EnvVars("TRIAGENT_ALERT_WEBHOOK"),
			Destination: &cfg.webhookURL,
		},
	}
}

// classifierFlags returns flags for the classification engine
func classifierFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini; empty disables the primary classifier",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.DurationFlag{
			Name:        "primary-timeout",
			Usage:       "Timeout for one primary classification call",
			Value:       15 * time.Second,
			Destination: &cfg.primaryTimeout,
		},
		&cli.DurationFlag{
			Name:        "cooldown",
			Usage:       "Degraded-mode cool-down before retrying the primary classifier",
			Value:       time.Minute,
			Destination: &cfg.cooldown,
		},
		&cli.StringFlag{
			Name:        "rules",
			Usage:       "YAML file overriding the fallback protocol thresholds",
			Sources:     cli.EnvVars("TRIAGENT_RULES_FILE"),
			Destination: &cfg.rulesFile,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Directory of Rego triage policies",
			Sources:     cli.EnvVars("TRIAGENT_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// newPrimary creates the primary classifier, or nil when Gemini is not
// configured (the pipeline then runs permanently degraded)
func (cfg *config) newPrimary(ctx context.Context) (classifier.Classifier, error) {
	if cfg.geminiProject == "" {
		return nil, nil
	}
	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithModel(cfg.geminiModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini adapter")
	}
	return classifier.NewPrimary(gemini, classifier.WithTimeout(cfg.primaryTimeout)), nil
}

// newFallback creates the rule-based fallback classifier
func (cfg *config) newFallback(ctx context.Context) (classifier.Classifier, error) {
	opts := []classifier.FallbackOption{}
	if cfg.rulesFile != "" {
		rules, err := classifier.LoadRules(cfg.rulesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, classifier.WithRules(rules))
	}
	if cfg.policyDir != "" {
		engine, err := classifier.NewPolicyEngine(ctx, cfg.policyDir)
		if err != nil {
			return nil, err
		}
		if engine != nil {
			opts = append(opts, classifier.WithPolicy(engine))
		}
	}
	return classifier.NewFallback(opts...), nil
}

// newDecisionLog creates the audit sink, with an optional storage mirror
func (cfg *config) newDecisionLog(ctx context.Context) (*repository.JSONLog, error) {
	var opts []repository.JSONLOption
	if cfg.mirrorBucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.mirrorBucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage mirror")
		}
		opts = append(opts, repository.WithMirror(storage, "decisions/"+time.Now().UTC().Format("20060102-150405")+".jsonl"))
	}
	return repository.NewJSONL(cfg.outputFile, opts...)
}

// newNotifier creates the tier-1 alert channel
func (cfg *config) newNotifier() notify.Notifier {
	if cfg.webhookURL != "" {
		return notify.NewWebhook(cfg.webhookURL)
	}
	return nil
}
