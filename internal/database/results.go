package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/whostune/server/internal/quiz"
)

// SaveGameResult archives one finished game's leaderboard as a JSON blob.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS game_results (
//	    id BIGSERIAL PRIMARY KEY,
//	    room_code TEXT NOT NULL,
//	    rankings JSONB NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
func SaveGameResult(ctx context.Context, roomCode string, rankings []quiz.RankingEntry) error {
	if DB == nil {
		return nil
	}
	data, err := json.Marshal(rankings)
	if err != nil {
		return fmt.Errorf("failed to marshal rankings: %w", err)
	}
	_, err = DB.Exec(ctx, `
        INSERT INTO game_results (room_code, rankings)
        VALUES ($1, $2)
    `, roomCode, data)
	if err != nil {
		return fmt.Errorf("failed to insert game result: %w", err)
	}
	return nil
}
