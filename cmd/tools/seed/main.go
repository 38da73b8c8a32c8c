package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/database"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/repositories"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: seed <database_path> <trainers.json>")
		fmt.Println("Loads a JSON array of trainers and refreshes the specialties view")
		os.Exit(1)
	}

	dbPath, fixturePath := os.Args[1], os.Args[2]

	data, err := os.ReadFile(fixturePath)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", fixturePath, err)
	}

	var trainers []*models.TrainerRow
	if err := json.Unmarshal(data, &trainers); err != nil {
		log.Fatalf("Failed to parse %s: %v", fixturePath, err)
	}

	db, err := database.Initialize(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := repositories.NewTrainerRepository(db.DB)

	for _, trainer := range trainers {
		if trainer.ID == "" {
			log.Fatalf("Trainer %q has no id", trainer.Name)
		}
		if err := repo.Upsert(ctx, trainer); err != nil {
			log.Fatalf("Failed to upsert trainer %s: %v", trainer.ID, err)
		}
	}

	if err := repo.RefreshView(ctx); err != nil {
		log.Fatalf("Failed to refresh view: %v", err)
	}

	fmt.Printf("Seeded %d trainers\n", len(trainers))
}
