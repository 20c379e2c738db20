package model

import "time"

type UnitID string

const (
	// UnitICU is the default intensive-care unit ID used by feeds that report
	// only aggregate ICU bed counts.
	UnitICU UnitID = "icu"

	// UnitStabilizeAndTransfer marks a decision whose ideal unit had no
	// capacity at context-construction time. The patient keeps the assigned
	// tier; only the routing changes.
	UnitStabilizeAndTransfer = "stabilize-and-transfer"
)

// ResourceState is one logical capacity row per unit. Rows are mutated in
// place as updates arrive; consumers only ever see copies taken by snapshot.
type ResourceState struct {
	UnitID            UnitID
	CapacityTotal     int
	CapacityAvailable int
	StaffAvailable    int
	UpdatedAt         time.Time
}

// Clone returns a copy safe to hand to readers.
func (r *ResourceState) Clone() *ResourceState {
	c := *r
	return &c
}
