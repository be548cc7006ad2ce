package stores

import (
	"context"
	"time"
)

// RecordKind identifies the domain entity a scoped record describes.
type RecordKind string

const (
	RecordKindSupplier   RecordKind = "supplier"
	RecordKindBid        RecordKind = "bid"
	RecordKindCompliance RecordKind = "compliance_record"
	RecordKindIncident   RecordKind = "incident"
	RecordKindTask       RecordKind = "task"
	RecordKindDocument   RecordKind = "document"
	RecordKindResource   RecordKind = "resource"
	RecordKindMessage    RecordKind = "message"
	RecordKindMilestone  RecordKind = "milestone"
)

// DomainRecord is a scoped domain entity agents read during analysis.
// The payload is an opaque JSON blob owned by the writing service.
type DomainRecord struct {
	ID             string     `json:"id"`
	Kind           RecordKind `json:"kind"`
	OrganizationID string     `json:"organization_id"`
	ProjectID      *string    `json:"project_id,omitempty"`
	Severity       *string    `json:"severity,omitempty"`
	Payload        string     `json:"payload"` // JSON blob
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RecordFilter selects domain records by kind and scope.
type RecordFilter struct {
	Kind           RecordKind
	OrganizationID string
	ProjectID      string
	Severity       string
	Limit          int
}

// DomainStore is the persistence interface for scoped domain records.
type DomainStore interface {
	// UpsertRecord inserts or replaces a domain record by id.
	UpsertRecord(ctx context.Context, rec *DomainRecord) error

	// GetRecord retrieves a domain record by id.
	GetRecord(ctx context.Context, id string) (*DomainRecord, error)

	// ListRecords returns records matching the filter, newest first.
	ListRecords(ctx context.Context, filter RecordFilter) ([]*DomainRecord, error)

	// CountRecords returns the number of records matching the filter.
	CountRecords(ctx context.Context, filter RecordFilter) (int, error)

	// DeleteRecord deletes a domain record by id.
	DeleteRecord(ctx context.Context, id string) error
}
