package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/promptbattle/internal/game"
)

// BattleStore keeps an audit trail of decided battles. Writes are best
// effort; the game never depends on them.
type BattleStore struct {
	db *pgxpool.Pool
}

func NewBattleStore(db *pgxpool.Pool) *BattleStore {
	return &BattleStore{db: db}
}

// Record inserts one decided battle from the finished snapshot.
func (s *BattleStore) Record(ctx context.Context, snap game.Snapshot) error {
	prompts, err := json.Marshal(snap.Prompts)
	if err != nil {
		return err
	}
	images, err := json.Marshal(snap.GeneratedImages)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO battles (round_number, winner_slot, competition_mode, prompts, images)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.RoundNumber, snap.Winner, string(snap.CompetitionMode), prompts, images)
	return err
}
