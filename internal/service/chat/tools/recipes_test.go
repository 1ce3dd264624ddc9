package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models"
)

// fakeRecipeRepo serves a fixed recipe set.
type fakeRecipeRepo struct {
	recipes   []models.Recipe
	lastQuery string
	lastLimit int
}

func (r *fakeRecipeRepo) SearchRecipes(ctx context.Context, query string, limit int) ([]models.Recipe, error) {
	r.lastQuery = query
	r.lastLimit = limit
	return r.recipes, nil
}

func (r *fakeRecipeRepo) GetRecipe(ctx context.Context, recipeID string) (*models.Recipe, error) {
	for i := range r.recipes {
		if r.recipes[i].ID == recipeID {
			return &r.recipes[i], nil
		}
	}
	return nil, fmt.Errorf("recipe %s: %w", recipeID, domain.ErrNotFound)
}

func TestSearchRecipesTool(t *testing.T) {
	repo := &fakeRecipeRepo{recipes: []models.Recipe{
		{ID: "r1", Title: "Tomato Soup", Tags: []string{"soup", "vegan"}},
	}}
	tool := NewSearchRecipesTool(repo)
	ctx := context.Background()

	t.Run("returns results and count", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"query": "soup"})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}

		resultMap := result.(map[string]interface{})
		if resultMap["count"] != 1 {
			t.Errorf("count: got %v, want 1", resultMap["count"])
		}
		if repo.lastQuery != "soup" {
			t.Errorf("query: got %q, want soup", repo.lastQuery)
		}
	})

	t.Run("limit decodes from JSON number", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{"query": "soup", "limit": float64(5)}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if repo.lastLimit != 5 {
			t.Errorf("limit: got %d, want 5", repo.lastLimit)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{}); err == nil {
			t.Error("expected error for missing query")
		}
	})

	t.Run("blank query", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{"query": "   "}); err == nil {
			t.Error("expected error for blank query")
		}
	})
}

func TestGetRecipeTool(t *testing.T) {
	repo := &fakeRecipeRepo{recipes: []models.Recipe{
		{ID: "r1", Title: "Tomato Soup", Markdown: "# Tomato Soup"},
	}}
	tool := NewGetRecipeTool(repo)
	ctx := context.Background()

	t.Run("returns full recipe", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"id": "r1"})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}

		resultMap := result.(map[string]interface{})
		if resultMap["markdown"] != "# Tomato Soup" {
			t.Errorf("markdown: got %v", resultMap["markdown"])
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]interface{}{"id": "missing"})
		if err == nil {
			t.Fatal("expected error for unknown id")
		}
	})

	t.Run("missing id", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{}); err == nil {
			t.Error("expected error for missing id")
		}
	})
}

func TestRegisterRecipeTools(t *testing.T) {
	registry := NewRegistry()
	RegisterRecipeTools(registry, &fakeRecipeRepo{})

	for _, name := range []string{"search_recipes", "get_recipe"} {
		if !registry.Has(name) {
			t.Errorf("tool %s not registered", name)
		}
	}

	defs := registry.Definitions([]string{"search_recipes"})
	if len(defs) != 1 || defs[0].InputSchema == nil {
		t.Error("search_recipes definition missing input schema")
	}
}
