package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahtrading/posledger/internal/domain/outbox"
)

// PosEventModel is the persistence model for the POS event outbox, the
// single source feeding the dispatcher.
type PosEventModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CompanyID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_pos_events_company_status,priority:1"`
	DeviceID      *uuid.UUID `gorm:"type:uuid"`
	EventType     string     `gorm:"type:varchar(64);not null"`
	Payload       []byte     `gorm:"type:jsonb;not null"`
	Status        string     `gorm:"type:varchar(20);not null;default:pending;index:idx_pos_events_company_status,priority:2"`
	AttemptCount  int        `gorm:"not null;default:0"`
	ErrorMessage  string     `gorm:"type:text"`
	NextAttemptAt *time.Time `gorm:"index:idx_pos_events_next_attempt"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;default:now();index"`
	UpdatedAt     time.Time `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (PosEventModel) TableName() string {
	return "pos_events_outbox"
}

// ToDomain converts the persistence model to a domain event
func (m *PosEventModel) ToDomain() *outbox.Event {
	return &outbox.Event{
		ID:            m.ID,
		CompanyID:     m.CompanyID,
		DeviceID:      m.DeviceID,
		EventType:     outbox.EventType(m.EventType),
		Payload:       m.Payload,
		Status:        outbox.Status(m.Status),
		AttemptCount:  m.AttemptCount,
		ErrorMessage:  m.ErrorMessage,
		NextAttemptAt: m.NextAttemptAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain event
func (m *PosEventModel) FromDomain(e *outbox.Event) {
	m.ID = e.ID
	m.CompanyID = e.CompanyID
	m.DeviceID = e.DeviceID
	m.EventType = string(e.EventType)
	m.Payload = e.Payload
	m.Status = string(e.Status)
	m.AttemptCount = e.AttemptCount
	m.ErrorMessage = e.ErrorMessage
	m.NextAttemptAt = e.NextAttemptAt
	m.ProcessedAt = e.ProcessedAt
	m.CreatedAt = e.CreatedAt
}

// EventModel is one downstream notification emitted after a document posts.
type EventModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID  uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType  string    `gorm:"type:varchar(64);not null"`
	SourceType string    `gorm:"type:varchar(40);not null;uniqueIndex:uq_events_source,priority:1"`
	SourceID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_events_source,priority:2"`
	Payload    []byte    `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (EventModel) TableName() string {
	return "events"
}
