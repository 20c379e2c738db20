package model

type EventKind string

const (
	EventPatient   EventKind = "patient"
	EventResource  EventKind = "resource"
	EventKnowledge EventKind = "knowledge"
)

// Event is the normalized envelope for the three ingestion sources. Exactly
// one payload field is set, matching Kind.
type Event struct {
	Kind      EventKind
	Patient   *PatientEvent
	Resource  *ResourceState
	Knowledge *KnowledgeUpdate
}
