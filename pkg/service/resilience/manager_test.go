package resilience_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/service/resilience"
)

func TestDegradeOnFailure(t *testing.T) {
	m := resilience.New(time.Minute)

	gt.Equal(t, m.State(), resilience.StateHealthy)
	gt.Equal(t, m.Route(), model.ClassifierPrimary)

	m.ReportFailure()
	gt.Equal(t, m.State(), resilience.StateDegraded)
	gt.Equal(t, m.Route(), model.ClassifierFallback)
}

func TestCooldownRecovery(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := resilience.New(time.Minute, resilience.WithClock(func() time.Time { return now }))

	m.ReportFailure()
	gt.Equal(t, m.State(), resilience.StateDegraded)

	now = now.Add(30 * time.Second)
	gt.Equal(t, m.State(), resilience.StateDegraded)

	// A further failure restarts the cool-down
	m.ReportFailure()
	now = now.Add(45 * time.Second)
	gt.Equal(t, m.State(), resilience.StateDegraded)

	now = now.Add(20 * time.Second)
	gt.Equal(t, m.State(), resilience.StateHealthy)
}

func TestProbeSuccessRecovers(t *testing.T) {
	m := resilience.New(time.Hour)

	m.ReportFailure()
	gt.Equal(t, m.State(), resilience.StateDegraded)

	m.ReportSuccess()
	gt.Equal(t, m.State(), resilience.StateHealthy)
}
