package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/promptbattle/internal/game"
)

// ArtifactStore is the durable sink for successfully generated
// artifacts. Save returns the stored row's path for display alongside
// the artifact.
type ArtifactStore struct {
	db *pgxpool.Pool
}

func NewArtifactStore(db *pgxpool.Pool) *ArtifactStore {
	return &ArtifactStore{db: db}
}

func (s *ArtifactStore) Save(ctx context.Context, slotID string, art game.Artifact) (string, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO battle_artifacts (slot_id, url, prompt, model)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, slotID, art.URL, art.Prompt, art.GeneratedBy).Scan(&id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("battle_artifacts/%d", id), nil
}
