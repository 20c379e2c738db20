package cli

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/m-mizutani/triagent/pkg/feed"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/repository"
	"github.com/m-mizutani/triagent/pkg/service/knowledge"
	"github.com/m-mizutani/triagent/pkg/service/resilience"
	"github.com/m-mizutani/triagent/pkg/service/resource"
	"github.com/m-mizutani/triagent/pkg/usecase/triage"
	"github.com/m-mizutani/triagent/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	cfg := &config{}
	flags := feedFlags(cfg)
	flags = append(flags, sinkFlags(cfg)...)
	flags = append(flags, classifierFlags(cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the triage decision pipeline over the input feeds",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config) error {
	logger := logging.From(ctx)

	primary, err := cfg.newPrimary(ctx)
	if err != nil {
		return err
	}
	if primary == nil {
		logger.Warn("primary classifier disabled, running on fallback rules only")
	}

	fallback, err := cfg.newFallback(ctx)
	if err != nil {
		return err
	}

	log, err := cfg.newDecisionLog(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := log.Close(ctx); err != nil {
			logger.Warn("failed to close decision log", "error", err)
		}
	}()

	deadLetter, err := repository.NewJSONL(cfg.deadLetter)
	if err != nil {
		return err
	}
	defer func() {
		if err := deadLetter.Close(ctx); err != nil {
			logger.Warn("failed to close dead-letter log", "error", err)
		}
	}()

	uc := triage.New(
		resource.New(),
		knowledge.New(),
		primary,
		fallback,
		resilience.New(cfg.cooldown),
		log,
		triage.WithDeadLetter(deadLetter),
		triage.WithNotifier(cfg.newNotifier()),
	)

	norm := feed.New()
	patientCh := make(chan *model.Event, 64)
	resourceCh := make(chan *model.Event, 64)
	knowledgeCh := make(chan *model.Event, 8)

	var tailOpts []feed.TailerOption
	if !cfg.replayHistory {
		tailOpts = append(tailOpts, feed.WithFromEnd())
	}

	var feeds sync.WaitGroup
	feeds.Add(1)
	go func() {
		defer feeds.Done()
		defer close(patientCh)
		tailer := feed.NewTailer(cfg.patientsFile, tailOpts...)
		err := tailer.Run(ctx, func(line []byte) error {
			ev, err := norm.Patient(line)
			if err != nil {
				logger.Warn("dropped malformed patient record", "error", err)
				return nil
			}
			return send(ctx, patientCh, ev)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("patient feed stopped", "error", err)
		}
	}()

	feeds.Add(1)
	go func() {
		defer feeds.Done()
		defer close(resourceCh)
		// Capacity history is always replayed so the table starts warm
		tailer := feed.NewTailer(cfg.resourcesFile)
		err := tailer.Run(ctx, func(line []byte) error {
			ev, err := norm.Resource(line)
			if err != nil {
				logger.Warn("dropped malformed resource record", "error", err)
				return nil
			}
			return send(ctx, resourceCh, ev)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("resource feed stopped", "error", err)
		}
	}()

	feeds.Add(1)
	go func() {
		defer feeds.Done()
		defer close(knowledgeCh)
		watcher := feed.NewDocumentWatcher(cfg.guidelinesFile)
		err := watcher.Run(ctx, func(doc string, modAt time.Time) error {
			return send(ctx, knowledgeCh, norm.Guidelines(doc, modAt))
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("guidelines feed stopped", "error", err)
		}
	}()

	logger.Info("triage pipeline started",
		"patients", cfg.patientsFile,
		"resources", cfg.resourcesFile,
		"guidelines", cfg.guidelinesFile,
		"output", cfg.outputFile)

	triage.NewPipeline(uc).Run(ctx, patientCh, resourceCh, knowledgeCh)
	feeds.Wait()

	logger.Info("triage pipeline stopped")
	return nil
}

func send(ctx context.Context, ch chan<- *model.Event, ev *model.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- ev:
		return nil
	}
}
