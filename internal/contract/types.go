// Package contract defines the JSON shapes exchanged between the trainercal
// server and its clients.
package contract

import "time"

// Provider identifies an external calendar service.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderGoogle, ProviderOutlook}

// ParseProvider converts a path or flag value to a Provider.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderGoogle:
		return ProviderGoogle, true
	case ProviderOutlook:
		return ProviderOutlook, true
	default:
		return "", false
	}
}

// Source is the provenance tag of an event. It is never changed after creation.
type Source string

const (
	SourceManual  Source = "manual"
	SourceGoogle  Source = "google"
	SourceOutlook Source = "outlook"
)

// SourceFor returns the source tag carried by events synced from p.
func SourceFor(p Provider) Source {
	return Source(p)
}

// EventType is the semantic type of an event.
type EventType string

const (
	TypeTraining     EventType = "training"
	TypeConsultation EventType = "consultation"
	TypePersonal     EventType = "personal"
	TypeSynced       EventType = "synced"
)

// Manual reports whether the type may be chosen for a trainer-created event.
func (t EventType) Manual() bool {
	return t == TypeTraining || t == TypeConsultation || t == TypePersonal
}

// LinksStudent reports whether events of this type may reference a student.
func (t EventType) LinksStudent() bool {
	return t == TypeTraining || t == TypeConsultation
}

// CalendarEvent is one entry of the merged calendar.
type CalendarEvent struct {
	ID          string    `json:"id"`
	SeriesID    string    `json:"seriesId,omitempty"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type"`
	StudentID   string    `json:"studentId,omitempty"`
	StudentName string    `json:"studentName,omitempty"`
	Source      Source    `json:"source"`
	Recurrence  string    `json:"recurrence,omitempty"`
}

// EventInput is the body of event create and update requests.
type EventInput struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type"`
	StudentID   string    `json:"studentId,omitempty"`
	Recurrence  string    `json:"recurrence,omitempty"`
}

// EventsResponse is returned by GET /api/calendar/events.
type EventsResponse struct {
	Events []CalendarEvent `json:"events"`
}

// Student is a roster entry owned by the trainer.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StudentInput is the body of POST /api/students.
type StudentInput struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// StudentsResponse is returned by GET /api/students.
type StudentsResponse struct {
	Students []Student `json:"students"`
}

// ConnectionStatus is the server's view of one provider connection.
type ConnectionStatus struct {
	Connected  bool       `json:"connected"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}

// StatusResponse is returned by GET /api/calendar/status.
type StatusResponse struct {
	Connections map[Provider]ConnectionStatus `json:"connections"`
}

// AuthURLResponse is returned by GET /api/auth/{provider}/calendar.
type AuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}
