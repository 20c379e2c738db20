package resource_test

import (
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/service/resource"
)

func row(unit model.UnitID, avail int, ts time.Time) *model.ResourceState {
	return &model.ResourceState{
		UnitID:            unit,
		CapacityTotal:     10,
		CapacityAvailable: avail,
		StaffAvailable:    4,
		UpdatedAt:         ts,
	}
}

func TestApplyUpdateMonotonic(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tbl := resource.New()

	gt.True(t, tbl.ApplyUpdate(row(model.UnitICU, 3, base)))
	gt.True(t, tbl.ApplyUpdate(row(model.UnitICU, 1, base.Add(time.Minute))))

	// Late arrival with an older timestamp is a no-op
	gt.False(t, tbl.ApplyUpdate(row(model.UnitICU, 9, base.Add(-time.Minute))))

	snap := tbl.Snapshot()
	gt.Equal(t, snap[model.UnitICU].CapacityAvailable, 1)
}

func TestApplyUpdateOrderIndependent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	u1 := row("er", 5, base)
	u2 := row("er", 2, base.Add(time.Second))

	forward := resource.New()
	forward.ApplyUpdate(u1)
	forward.ApplyUpdate(u2)

	reversed := resource.New()
	reversed.ApplyUpdate(u2)
	reversed.ApplyUpdate(u1)

	gt.Equal(t, forward.Snapshot()["er"].CapacityAvailable, 2)
	gt.Equal(t, reversed.Snapshot()["er"].CapacityAvailable, 2)
}

func TestSnapshotIsolation(t *testing.T) {
	base := time.Now()
	tbl := resource.New()
	tbl.ApplyUpdate(row(model.UnitICU, 3, base))

	snap := tbl.Snapshot()
	snap[model.UnitICU].CapacityAvailable = 0

	gt.Equal(t, tbl.Snapshot()[model.UnitICU].CapacityAvailable, 3)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	base := time.Now()
	tbl := resource.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tbl.ApplyUpdate(row("er", j, base.Add(time.Duration(n*100+j)*time.Millisecond)))
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap := tbl.Snapshot()
				if r, ok := snap["er"]; ok {
					// A reader must always observe a fully-written row
					gt.Equal(t, r.CapacityTotal, 10)
					gt.Equal(t, r.UnitID, model.UnitID("er"))
				}
			}
		}()
	}
	wg.Wait()

	gt.Equal(t, tbl.Len(), 1)
}
