package ports

import (
	"context"

	"github.com/aretw0/anima/pkg/domain"
)

// BlueprintLoader resolves persona documents.
type BlueprintLoader interface {
	// LoadBlueprint returns the blueprint with the given ID.
	// Returns domain.ErrBlueprintNotFound if it does not exist.
	LoadBlueprint(ctx context.Context, id string) (domain.Blueprint, error)

	// ListBlueprints returns the IDs of every available blueprint.
	ListBlueprints(ctx context.Context) ([]string, error)
}
