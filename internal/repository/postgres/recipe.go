package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/repositories"
)

const (
	// Default and maximum result caps for recipe search
	DefaultRecipeSearchLimit = 10
	MaxRecipeSearchLimit     = 50
)

// PostgresRecipeRepository implements the RecipeRepository interface
type PostgresRecipeRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewRecipeRepository creates a new recipe repository
func NewRecipeRepository(config *RepositoryConfig) repositories.RecipeRepository {
	return &PostgresRecipeRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// SearchRecipes returns recipes whose title, description, or tags match
// the query, newest first
func (r *PostgresRecipeRepository) SearchRecipes(ctx context.Context, query string, limit int) ([]models.Recipe, error) {
	if limit <= 0 {
		limit = DefaultRecipeSearchLimit
	}
	if limit > MaxRecipeSearchLimit {
		limit = MaxRecipeSearchLimit
	}

	sql := fmt.Sprintf(`
		SELECT id, title, description, tags, markdown, created_at
		FROM %s
		WHERE title ILIKE '%%' || $1 || '%%'
		   OR description ILIKE '%%' || $1 || '%%'
		   OR EXISTS (SELECT 1 FROM unnest(tags) tag WHERE tag ILIKE '%%' || $1 || '%%')
		ORDER BY created_at DESC
		LIMIT $2
	`, r.tables.Recipes)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search recipes: %w", err)
	}
	defer rows.Close()

	var recipes []models.Recipe
	for rows.Next() {
		var recipe models.Recipe
		err := rows.Scan(
			&recipe.ID,
			&recipe.Title,
			&recipe.Description,
			&recipe.Tags,
			&recipe.Markdown,
			&recipe.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, recipe)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}

	if recipes == nil {
		recipes = []models.Recipe{}
	}

	return recipes, nil
}

// GetRecipe retrieves a recipe by ID
func (r *PostgresRecipeRepository) GetRecipe(ctx context.Context, recipeID string) (*models.Recipe, error) {
	sql := fmt.Sprintf(`
		SELECT id, title, description, tags, markdown, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Recipes)

	var recipe models.Recipe
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, sql, recipeID).Scan(
		&recipe.ID,
		&recipe.Title,
		&recipe.Description,
		&recipe.Tags,
		&recipe.Markdown,
		&recipe.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("recipe %s: %w", recipeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get recipe: %w", err)
	}

	return &recipe, nil
}
