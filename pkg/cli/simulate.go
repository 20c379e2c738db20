package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// samplePatients mirrors the demo stream used during development
var samplePatients = []map[string]any{
	{
		"patient_id": "P2001",
		"name":       "Alice Wonderland",
		"symptoms":   "Severe headache, slurred speech",
		"vitals":     map[string]any{"bp": "180/100", "hr": 90, "spo2": 95},
		"labs":       map[string]any{},
	},
	{
		"patient_id": "P2002",
		"name":       "Bob Builder",
		"symptoms":   "Broken thumb",
		"vitals":     map[string]any{"bp": "130/80", "hr": 80, "spo2": 99},
		"labs":       map[string]any{},
	},
	{
		"patient_id": "P2003",
		"name":       "Charlie Brown",
		"symptoms":   "Asthma attack, difficulty breathing",
		"vitals":     map[string]any{"bp": "140/90", "hr": 120, "spo2": 88},
		"labs":       map[string]any{},
	},
}

func simulateCommand() *cli.Command {
	var output string
	var interval time.Duration

	return &cli.Command{
		Name:  "simulate",
		Usage: "Emit sample patient events to the intake feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Path to the patient intake JSONL feed",
				Value:       "data/patients.jsonl",
				Destination: &output,
			},
			&cli.DurationFlag{
				Name:        "interval",
				Usage:       "Delay between emitted patients",
				Value:       5 * time.Second,
				Destination: &interval,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return simulate(ctx, output, interval)
		},
	}
}

func simulate(ctx context.Context, output string, interval time.Duration) error {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create data directory", goerr.V("dir", dir))
		}
	}

	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open intake feed", goerr.V("path", output))
	}
	defer f.Close()

	logger := logging.From(ctx)
	for i, p := range samplePatients {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		data, err := json.Marshal(p)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal sample patient")
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return goerr.Wrap(err, "failed to write sample patient", goerr.V("path", output))
		}
		logger.Info("emitted sample patient", "patient_id", p["patient_id"])
	}
	return nil
}
