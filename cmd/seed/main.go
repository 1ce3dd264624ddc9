package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/config"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/repository/postgres"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed recipes")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("🚫 BLOCKED: Cannot run --drop-tables in production environment")
	}

	log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := runSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("✅ Schema ready")

	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	log.Println("📝 Seeding recipe catalog...")
	count, err := seedRecipes(ctx, pool, tables)
	if err != nil {
		log.Fatalf("Failed to seed recipes: %v", err)
	}
	log.Printf("🎉 Seeding complete! (%d recipes)", count)
}

// runSchema creates tables if they don't exist
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return err
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tables.Chats + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			title TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Messages + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			chat_id UUID NOT NULL REFERENCES ` + tables.Chats + `(id) ON DELETE CASCADE,
			run_id UUID,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Parts + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			message_id UUID NOT NULL REFERENCES ` + tables.Messages + `(id) ON DELETE CASCADE,
			ord INTEGER NOT NULL,
			type TEXT NOT NULL,
			state TEXT NOT NULL,
			text_content TEXT,
			tool_payload JSONB,
			source_payload JSONB,
			file_payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(message_id, ord)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Runs + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			chat_id UUID NOT NULL REFERENCES ` + tables.Chats + `(id) ON DELETE CASCADE,
			message_id UUID,
			complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.RunEvents + ` (
			run_id UUID NOT NULL REFERENCES ` + tables.Runs + `(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			chunk JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY(run_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Recipes + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			markdown TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Messages + `_chat ON ` + tables.Messages + `(chat_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Parts + `_message ON ` + tables.Parts + `(message_id, ord)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// dropAllTables drops tables in dependency order
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	ordered := []string{
		tables.RunEvents,
		tables.Runs,
		tables.Parts,
		tables.Messages,
		tables.Chats,
		tables.Recipes,
	}
	for _, table := range ordered {
		if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS `+table+` CASCADE`); err != nil {
			return err
		}
	}
	return nil
}

type seedRecipe struct {
	title       string
	description string
	tags        []string
	markdown    string
}

func seedRecipes(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) (int, error) {
	recipes := []seedRecipe{
		{
			title:       "Classic Tomato Soup",
			description: "Smooth tomato soup with basil, done in half an hour.",
			tags:        []string{"soup", "vegetarian", "quick"},
			markdown:    "# Classic Tomato Soup\n\n## Ingredients\n- 1 kg ripe tomatoes\n- 1 onion, diced\n- 2 cloves garlic\n- 500 ml vegetable stock\n- Fresh basil\n\n## Steps\n1. Sweat the onion and garlic in olive oil.\n2. Add chopped tomatoes and stock, simmer 20 minutes.\n3. Blend until smooth, season, finish with basil.",
		},
		{
			title:       "Vegan Lentil Curry",
			description: "Red lentil curry with coconut milk and warming spices.",
			tags:        []string{"curry", "vegan", "lentils"},
			markdown:    "# Vegan Lentil Curry\n\n## Ingredients\n- 250 g red lentils\n- 1 can coconut milk\n- 2 tbsp curry paste\n- 1 onion\n- Spinach to finish\n\n## Steps\n1. Fry the onion, stir in the curry paste.\n2. Add lentils, coconut milk and 400 ml water.\n3. Simmer 20 minutes, fold in spinach before serving.",
		},
		{
			title:       "Sourdough Pancakes",
			description: "Weekend pancakes using sourdough starter discard.",
			tags:        []string{"breakfast", "sourdough", "baking"},
			markdown:    "# Sourdough Pancakes\n\n## Ingredients\n- 200 g sourdough discard\n- 150 g flour\n- 200 ml milk\n- 1 egg\n- 1 tsp baking soda\n\n## Steps\n1. Whisk everything except the baking soda.\n2. Rest 10 minutes, then fold in the soda.\n3. Cook on a medium griddle until bubbles set.",
		},
		{
			title:       "Miso Glazed Salmon",
			description: "Broiled salmon with a sweet-savory miso glaze.",
			tags:        []string{"fish", "japanese", "dinner"},
			markdown:    "# Miso Glazed Salmon\n\n## Ingredients\n- 4 salmon fillets\n- 3 tbsp white miso\n- 2 tbsp mirin\n- 1 tbsp soy sauce\n- 1 tbsp honey\n\n## Steps\n1. Whisk the glaze and coat the fillets; marinate 30 minutes.\n2. Broil 8-10 minutes until the glaze caramelizes.\n3. Serve over rice with scallions.",
		},
		{
			title:       "Chickpea Salad Bowl",
			description: "No-cook lunch bowl with chickpeas, cucumber, and lemon dressing.",
			tags:        []string{"salad", "vegan", "quick", "lunch"},
			markdown:    "# Chickpea Salad Bowl\n\n## Ingredients\n- 1 can chickpeas, rinsed\n- 1 cucumber, diced\n- Cherry tomatoes\n- Red onion\n- Lemon, olive oil, parsley\n\n## Steps\n1. Toss everything in a large bowl.\n2. Dress with lemon juice and olive oil.\n3. Season and rest 10 minutes before serving.",
		},
	}

	query := `
		INSERT INTO ` + tables.Recipes + ` (id, title, description, tags, markdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	for i, recipe := range recipes {
		// Deterministic ids so reseeding does not duplicate the catalog
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("recipe:"+recipe.title)).String()
		_, err := pool.Exec(ctx, query,
			id,
			recipe.title,
			recipe.description,
			recipe.tags,
			recipe.markdown,
			time.Now(),
		)
		if err != nil {
			return i, err
		}
		log.Printf("✅ Seeded recipe %d/%d: %s", i+1, len(recipes), recipe.title)
	}

	return len(recipes), nil
}
