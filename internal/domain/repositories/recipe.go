package repositories

import (
	"context"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models"
)

// RecipeRepository provides read access to the recipe catalog.
type RecipeRepository interface {
	// SearchRecipes returns recipes whose title, description, or tags
	// match the query, newest first, capped at limit.
	SearchRecipes(ctx context.Context, query string, limit int) ([]models.Recipe, error)

	// GetRecipe returns a recipe by id, or domain.ErrNotFound.
	GetRecipe(ctx context.Context, recipeID string) (*models.Recipe, error)
}
