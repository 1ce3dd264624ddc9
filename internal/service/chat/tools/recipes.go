package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/repositories"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

// SearchRecipesTool implements the 'search_recipes' tool for keyword
// search over the recipe catalog.
type SearchRecipesTool struct {
	recipeRepo repositories.RecipeRepository
}

// NewSearchRecipesTool creates a new SearchRecipesTool instance.
func NewSearchRecipesTool(recipeRepo repositories.RecipeRepository) *SearchRecipesTool {
	return &SearchRecipesTool{recipeRepo: recipeRepo}
}

// Execute implements ToolExecutor interface.
// Input parameters:
//   - query (string, required): keywords to match against title, description, and tags
//   - limit (number, optional): maximum results, default 10
//
// Returns:
//   - {results: [...], count: N}
func (t *SearchRecipesTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	query, ok := input["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, errors.New("missing required parameter: query (string)")
	}
	query = strings.TrimSpace(query)

	limit := 0
	if limitVal, exists := input["limit"]; exists {
		// JSON numbers decode as float64
		if f, ok := limitVal.(float64); ok {
			limit = int(f)
		}
	}

	recipes, err := t.recipeRepo.SearchRecipes(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search recipes: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(recipes))
	for _, recipe := range recipes {
		results = append(results, map[string]interface{}{
			"id":          recipe.ID,
			"title":       recipe.Title,
			"description": recipe.Description,
			"tags":        recipe.Tags,
		})
	}

	return map[string]interface{}{
		"results": results,
		"count":   len(results),
	}, nil
}

// GetRecipeTool implements the 'get_recipe' tool returning a single
// recipe's full markdown.
type GetRecipeTool struct {
	recipeRepo repositories.RecipeRepository
}

// NewGetRecipeTool creates a new GetRecipeTool instance.
func NewGetRecipeTool(recipeRepo repositories.RecipeRepository) *GetRecipeTool {
	return &GetRecipeTool{recipeRepo: recipeRepo}
}

// Execute implements ToolExecutor interface.
// Input parameters:
//   - id (string, required): recipe identifier from a search result
func (t *GetRecipeTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	id, ok := input["id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, errors.New("missing required parameter: id (string)")
	}

	recipe, err := t.recipeRepo.GetRecipe(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("recipe not found: %s", id)
		}
		return nil, fmt.Errorf("get recipe: %w", err)
	}

	return map[string]interface{}{
		"id":          recipe.ID,
		"title":       recipe.Title,
		"description": recipe.Description,
		"tags":        recipe.Tags,
		"markdown":    recipe.Markdown,
	}, nil
}

// RegisterRecipeTools registers the recipe tools with the provided
// registry. Called once at startup; the tools are stateless apart from
// the repository handle.
func RegisterRecipeTools(registry *Registry, recipeRepo repositories.RecipeRepository) {
	registry.Register(domainchat.ToolDefinition{
		Name:        "search_recipes",
		Description: "Search the recipe catalog by keywords. Matches recipe titles, descriptions, and tags. Returns a list of matching recipes with their ids.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Keywords to search for, e.g. 'vegan pasta'",
				},
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum number of results (default 10, max 50)",
				},
			},
			"required": []any{"query"},
		},
	}, NewSearchRecipesTool(recipeRepo))

	registry.Register(domainchat.ToolDefinition{
		Name:        "get_recipe",
		Description: "Fetch one recipe's full content as markdown by its id. Use the ids returned by search_recipes.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "Recipe id",
				},
			},
			"required": []any{"id"},
		},
	}, NewGetRecipeTool(recipeRepo))
}
