// Package feed turns raw source records into typed pipeline events. Parsing
// is tolerant about field shapes because the three feeds come from different
// upstream systems; a record that cannot be normalized is reported as
// model.ErrMalformedData and the stream continues without it.
package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/model"
)

// Normalizer converts raw feed records into the three internal event kinds
type Normalizer struct {
	clock func() time.Time
}

type Option func(*Normalizer)

// WithClock overrides the timestamp source for records that arrive without one
func WithClock(clock func() time.Time) Option {
	return func(n *Normalizer) {
		n.clock = clock
	}
}

// New creates a Normalizer
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type rawPatient struct {
	PatientID string         `json:"patient_id"`
	Name      string         `json:"name"`
	ArrivedAt string         `json:"arrival_timestamp"`
	Complaint string         `json:"chief_complaint"`
	Symptoms  string         `json:"symptoms"`
	Vitals    map[string]any `json:"vitals"`
	Labs      map[string]any `json:"labs"`
}

// Patient normalizes one intake record. Records without a chief complaint
// fall back to the free-text symptoms; records without an ID get a synthetic
// one so the event still yields exactly one decision.
func (n *Normalizer) Patient(data []byte) (*model.Event, error) {
	var raw rawPatient
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedData, "invalid patient record", goerr.V("cause", err.Error()))
	}
	if raw.Symptoms == "" && raw.Complaint == "" {
		return nil, goerr.Wrap(model.ErrMalformedData, "patient record without complaint or symptoms")
	}

	p := &model.PatientEvent{
		ID:        model.PatientID(raw.PatientID),
		Name:      raw.Name,
		ArrivedAt: n.parseTime(raw.ArrivedAt),
		Complaint: raw.Complaint,
		Symptoms:  raw.Symptoms,
		Vitals:    raw.Vitals,
		Labs:      raw.Labs,
	}
	if p.ID == "" {
		p.ID = model.NewPatientID()
	}
	if p.Complaint == "" {
		p.Complaint = raw.Symptoms
	}

	return &model.Event{Kind: model.EventPatient, Patient: p}, nil
}

type rawResource struct {
	UnitID            string `json:"unit_id"`
	CapacityTotal     int    `json:"capacity_total"`
	CapacityAvailable *int   `json:"capacity_available"`
	StaffAvailable    int    `json:"staff_available"`
	Timestamp         string `json:"timestamp"`

	// Legacy aggregate shape emitted by the original capacity feed
	ICUTotal     int      `json:"icu_beds_total"`
	ICUAvailable *int     `json:"icu_beds_available"`
	Doctors      []string `json:"doctors_on_call"`
	Nurses       int      `json:"nurses_available"`
}

// Resource normalizes one capacity record. The legacy feed reports only
// aggregate ICU counts; those map onto the "icu" unit.
func (n *Normalizer) Resource(data []byte) (*model.Event, error) {
	var raw rawResource
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedData, "invalid resource record", goerr.V("cause", err.Error()))
	}

	state := &model.ResourceState{
		UpdatedAt: n.parseTime(raw.Timestamp),
	}
	switch {
	case raw.UnitID != "":
		if raw.CapacityAvailable == nil {
			return nil, goerr.Wrap(model.ErrMalformedData, "resource record without capacity_available", goerr.V("unit", raw.UnitID))
		}
		state.UnitID = model.UnitID(raw.UnitID)
		state.CapacityTotal = raw.CapacityTotal
		state.CapacityAvailable = *raw.CapacityAvailable
		state.StaffAvailable = raw.StaffAvailable
	case raw.ICUAvailable != nil:
		state.UnitID = model.UnitICU
		state.CapacityTotal = raw.ICUTotal
		state.CapacityAvailable = *raw.ICUAvailable
		state.StaffAvailable = raw.Nurses + len(raw.Doctors)
	default:
		return nil, goerr.Wrap(model.ErrMalformedData, "resource record without unit")
	}

	return &model.Event{Kind: model.EventResource, Resource: state}, nil
}

// Guidelines splits a whole protocol document into categorized snippets, one
// per "## " heading, and wraps them as a single atomic knowledge update.
// Text before the first heading becomes an uncategorized preamble snippet.
func (n *Normalizer) Guidelines(doc string, versionAt time.Time) *model.Event {
	update := &model.KnowledgeUpdate{VersionAt: versionAt}

	var category model.KnowledgeCategory
	var buf strings.Builder
	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		update.Snippets = append(update.Snippets, &model.KnowledgeSnippet{
			Category:  category,
			Text:      text,
			VersionAt: versionAt,
		})
	}

	for _, line := range strings.Split(doc, "\n") {
		if heading, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			category = categoryFromHeading(heading)
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()

	return &model.Event{Kind: model.EventKnowledge, Knowledge: update}
}

func categoryFromHeading(heading string) model.KnowledgeCategory {
	slug := strings.ToLower(strings.TrimSpace(heading))
	slug = strings.ReplaceAll(slug, " ", "-")
	return model.KnowledgeCategory(slug)
}

func (n *Normalizer) parseTime(s string) time.Time {
	if s == "" {
		return n.clock()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return n.clock()
}
