// Package triage orchestrates the decision pipeline: point-in-time context
// assembly, arbitrated classification, and the append-only audit trail.
package triage

import (
	"sync"
	"time"

	"github.com/m-mizutani/triagent/pkg/classifier"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/notify"
	"github.com/m-mizutani/triagent/pkg/repository"
	"github.com/m-mizutani/triagent/pkg/service/knowledge"
	"github.com/m-mizutani/triagent/pkg/service/resilience"
	"github.com/m-mizutani/triagent/pkg/service/resource"
)

// UseCase wires the two state stores, the two classifiers, and the decision
// sink. One instance serves the whole process.
type UseCase struct {
	resources *resource.Table
	knowledge *knowledge.Store
	primary   classifier.Classifier
	fallback  classifier.Classifier
	health    *resilience.Manager
	log       repository.DecisionLog

	notifier      notify.Notifier
	deadLetter    repository.DecisionLog
	appendRetries int
	appendBackoff time.Duration
	clock         func() time.Time

	mu       sync.Mutex
	inflight map[model.PatientID]struct{}
	done     map[model.PatientID]struct{}
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithNotifier sets the tier-1 alert channel
func WithNotifier(n notify.Notifier) Option {
	return func(u *UseCase) {
		u.notifier = n
	}
}

// WithDeadLetter sets the sink for records whose audit write kept failing
func WithDeadLetter(log repository.DecisionLog) Option {
	return func(u *UseCase) {
		u.deadLetter = log
	}
}

// WithAppendRetry tunes the audit-write retry loop
func WithAppendRetry(retries int, backoff time.Duration) Option {
	return func(u *UseCase) {
		u.appendRetries = retries
		u.appendBackoff = backoff
	}
}

// WithClock overrides the time source, for tests
func WithClock(clock func() time.Time) Option {
	return func(u *UseCase) {
		u.clock = clock
	}
}

// New creates a triage UseCase
func New(
	resources *resource.Table,
	knowledgeStore *knowledge.Store,
	primary classifier.Classifier,
	fallback classifier.Classifier,
	health *resilience.Manager,
	log repository.DecisionLog,
	opts ...Option,
) *UseCase {
	u := &UseCase{
		resources:     resources,
		knowledge:     knowledgeStore,
		primary:       primary,
		fallback:      fallback,
		health:        health,
		log:           log,
		appendRetries: 5,
		appendBackoff: 100 * time.Millisecond,
		clock:         time.Now,
		inflight:      make(map[model.PatientID]struct{}),
		done:          make(map[model.PatientID]struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
