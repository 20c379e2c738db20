package model

import (
	"time"

	"github.com/google/uuid"
)

type PatientID string

// NewPatientID generates a new unique PatientID for records arriving without one
func NewPatientID() PatientID {
	return PatientID(uuid.New().String())
}

// PatientEvent is a single intake record. It is immutable once ingested;
// the pipeline never writes to it after normalization.
type PatientEvent struct {
	ID        PatientID
	Name      string
	ArrivedAt time.Time
	Complaint string
	Symptoms  string
	Vitals    map[string]any
	Labs      map[string]any
}

// Vital returns the named vital sign as a number. Values arrive from JSON as
// float64; non-numeric vitals such as "bp" strings report false.
func (p *PatientEvent) Vital(name string) (float64, bool) {
	v, ok := p.Vitals[name]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
