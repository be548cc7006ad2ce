package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a domain record fixture.
type seedFile struct {
	Records []seedRecord `yaml:"records"`
}

type seedRecord struct {
	ID             string         `yaml:"id"`
	Kind           string         `yaml:"kind"`
	OrganizationID string         `yaml:"organization_id"`
	ProjectID      string         `yaml:"project_id"`
	Severity       string         `yaml:"severity"`
	Payload        map[string]any `yaml:"payload"`
}

// SeedFromFile loads domain records from a YAML fixture into the store.
// Records without an id get a generated one. Returns the number of records
// written.
func SeedFromFile(ctx context.Context, store DomainStore, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	now := time.Now().UTC()
	written := 0

	for i, sr := range file.Records {
		if sr.Kind == "" {
			return written, fmt.Errorf("seed record %d has no kind", i)
		}
		if sr.OrganizationID == "" {
			return written, fmt.Errorf("seed record %d has no organization_id", i)
		}

		payload, err := json.Marshal(sr.Payload)
		if err != nil {
			return written, fmt.Errorf("seed record %d has an invalid payload: %w", i, err)
		}

		rec := &DomainRecord{
			ID:             sr.ID,
			Kind:           RecordKind(sr.Kind),
			OrganizationID: sr.OrganizationID,
			Payload:        string(payload),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if sr.ProjectID != "" {
			rec.ProjectID = &sr.ProjectID
		}
		if sr.Severity != "" {
			rec.Severity = &sr.Severity
		}

		if err := store.UpsertRecord(ctx, rec); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}
