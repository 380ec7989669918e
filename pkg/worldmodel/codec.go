package worldmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// DocumentVersion is the current codec version. A decoder rejects a document
// whose major component differs and only warns on a differing minor
// component (§4.9).
const DocumentVersion = "1.0"

// Document is the versioned, self-describing export/import format.
type Document struct {
	Version       string         `json:"version"`
	ExportDate    time.Time      `json:"export_date"`
	Source        string         `json:"source"`
	Mode          string         `json:"mode"`
	Project       string         `json:"project,omitempty"`
	Statistics    Statistics     `json:"statistics"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// GraphLister is the extra capability [ExportGraph]/[ImportGraph] need
// beyond the public [Storage] contract: the ability to enumerate every
// relationship in scope. It is not part of [Storage] itself because
// spec.md's abstract contract names no such operation — backends add it as
// an implementation detail the codec relies on structurally.
type GraphLister interface {
	Storage
	ListRelationships(ctx context.Context, project string) ([]Relationship, error)
}

// ExportGraph writes the document format for g, scoped to project (all
// projects when empty), to path.
func ExportGraph(ctx context.Context, g GraphLister, path, project string) error {
	entities, err := g.IterateEntities(ctx, project)
	if err != nil {
		return fmt.Errorf("worldmodel: export: iterate entities: %w", err)
	}
	rels, err := g.ListRelationships(ctx, project)
	if err != nil {
		return fmt.Errorf("worldmodel: export: list relationships: %w", err)
	}
	stats, err := g.GetStatistics(ctx)
	if err != nil {
		return fmt.Errorf("worldmodel: export: statistics: %w", err)
	}

	doc := Document{
		Version:       DocumentVersion,
		ExportDate:    time.Now(),
		Source:        "kosmos",
		Mode:          "simple",
		Project:       project,
		Statistics:    stats,
		Entities:      entities,
		Relationships: rels,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("worldmodel: export: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("worldmodel: export: write %q: %w", path, err)
	}
	return nil
}

// ImportGraph reads the document at path and loads it into g under mode.
// Returns the number of entities imported.
func ImportGraph(ctx context.Context, g GraphLister, path, project string, mode ImportMode) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("worldmodel: import: read %q: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("worldmodel: import: unmarshal: %w", err)
	}

	if err := checkVersion(doc.Version); err != nil {
		return 0, err
	}

	if mode == ImportReplace {
		if err := g.Reset(ctx, project, true); err != nil {
			return 0, fmt.Errorf("worldmodel: import: replace reset: %w", err)
		}
	}

	count := 0
	// In replace mode a failure after the reset clears the project again, so
	// it is left empty rather than half-populated.
	failed := func(err error) (int, error) {
		if mode != ImportReplace {
			return count, err
		}
		if rerr := g.Reset(ctx, project, true); rerr != nil {
			slog.Warn("worldmodel: import: clearing project after failed replace", "project", project, "error", rerr)
		}
		return 0, err
	}
	for _, e := range doc.Entities {
		if err := upsertEntity(ctx, g, e); err != nil {
			return failed(fmt.Errorf("worldmodel: import: entity %q: %w", e.ID, err))
		}
		count++
	}
	for _, r := range doc.Relationships {
		// Endpoints are matched by id property per the source's documented
		// tolerance (§9): re-inserting with the original id is sufficient
		// since upsertEntity preserves ids verbatim.
		if _, err := g.AddRelationship(ctx, r); err != nil {
			return failed(fmt.Errorf("worldmodel: import: relationship %q: %w", r.ID, err))
		}
	}
	return count, nil
}

// upsertEntity adds e if absent, or merges it into the existing record when
// present: properties overwritten, updated_at advanced, annotations
// concatenated (§4.9 merge semantics).
func upsertEntity(ctx context.Context, g GraphLister, e Entity) error {
	existing, err := g.GetEntity(ctx, e.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := g.AddEntity(ctx, e)
		return err
	}

	merged := *existing
	merged.Type = e.Type
	merged.Properties = e.Properties
	merged.Confidence = e.Confidence
	merged.Project = e.Project
	merged.Verified = e.Verified
	merged.Annotations = append(append([]Annotation{}, existing.Annotations...), e.Annotations...)
	return g.UpdateEntity(ctx, merged)
}

// checkVersion rejects a mismatched major version; a differing minor
// version only warns.
func checkVersion(version string) error {
	wantMajor := strings.SplitN(DocumentVersion, ".", 2)[0]
	gotMajor := strings.SplitN(version, ".", 2)[0]
	if gotMajor != wantMajor {
		return fmt.Errorf("worldmodel: import: document version %q has major version %q, expected %q: %w",
			version, gotMajor, wantMajor, ErrVersionMismatch)
	}
	if version != DocumentVersion {
		slog.Warn("worldmodel: importing document with differing minor version", "document_version", version, "current_version", DocumentVersion)
	}
	return nil
}
