// Package loam loads soul blueprints from a Loam document repository.
//
// A blueprint is a markdown file whose frontmatter carries the soul's name
// and whose body is the persona text:
//
//	---
//	name: Samantha
//	entity: tutor
//	---
//	You are Samantha, a patient tutor...
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/loam"
)

// Loader adapts the Loam library to the BlueprintLoader port.
type Loader struct {
	Repo *loam.TypedRepository[BlueprintMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[BlueprintMetadata]) *Loader {
	return &Loader{Repo: repo}
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	// Strict mode keeps numeric frontmatter consistent across JSON and YAML
	// documents; read-only mode avoids Loam's sandbox copy in dev mode.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[BlueprintMetadata](repo)), nil
}

// LoadBlueprint reads the blueprint with the given id (file name without extension).
func (l *Loader) LoadBlueprint(ctx context.Context, id string) (domain.Blueprint, error) {
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		ids, listErr := l.ListBlueprints(ctx)
		if listErr == nil && !slices.Contains(ids, trimExtension(id)) {
			return domain.Blueprint{}, fmt.Errorf("blueprint '%s': %w", id, domain.ErrBlueprintNotFound)
		}
		return domain.Blueprint{}, fmt.Errorf("loam get failed for %s: %w", id, err)
	}

	name := doc.Data.Name
	if name == "" {
		name = filepath.Base(trimExtension(documentID(doc.Data.ID, doc.ID)))
	}
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return domain.Blueprint{}, fmt.Errorf("blueprint '%s' has no persona text", id)
	}

	return domain.Blueprint{
		Name:    name,
		Entity:  doc.Data.Entity,
		Context: doc.Data.Context,
		Content: content,
	}, nil
}

// ListBlueprints lists all blueprint ids in the repository.
func (l *Loader) ListBlueprints(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id := trimExtension(documentID(doc.Data.ID, doc.ID))
		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// documentID prefers the id declared in metadata over the file name.
func documentID(declared, path string) string {
	if declared != "" {
		return declared
	}
	return path
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
