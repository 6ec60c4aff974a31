// internal/database/stats.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/throwdown-gg/throwdown/internal/game"
)

// Stats implements game.StatsProvider: aggregate move counts from the
// rounds table for the opponent-model bot.
type Stats struct{}

// MoveFrequencies counts userID's historical moves, excluding rounds
// played against excludeOpponent (the bot passes its own id so only
// human-vs-human history trains the model).
func (Stats) MoveFrequencies(ctx context.Context, userID, excludeOpponent uuid.UUID) (map[game.Move]int, error) {
	q := `
		SELECT t.mv, COUNT(*)
		FROM (
			SELECT CASE WHEN m.participant_a=$1 THEN r.move_a ELSE r.move_b END AS mv,
			       CASE WHEN m.participant_a=$1 THEN m.participant_b ELSE m.participant_a END AS opponent
			FROM rounds r
			JOIN matches m ON m.id = r.match_id
			WHERE m.participant_a=$1 OR m.participant_b=$1
		) t
		WHERE t.mv IS NOT NULL AND t.opponent <> $2
		GROUP BY t.mv
	`
	return scanMoveCounts(ctx, q, userID, excludeOpponent)
}

// PopulationMoveFrequencies counts every user's moves across all matches
// that do not involve excludeUser at all.
func (Stats) PopulationMoveFrequencies(ctx context.Context, excludeUser uuid.UUID) (map[game.Move]int, error) {
	q := `
		SELECT t.mv, COUNT(*)
		FROM (
			SELECT r.move_a AS mv, m.participant_a AS p1, m.participant_b AS p2
			FROM rounds r JOIN matches m ON m.id = r.match_id
			UNION ALL
			SELECT r.move_b, m.participant_a, m.participant_b
			FROM rounds r JOIN matches m ON m.id = r.match_id
		) t
		WHERE t.mv IS NOT NULL AND t.p1 <> $1 AND t.p2 <> $1
		GROUP BY t.mv
	`
	return scanMoveCounts(ctx, q, excludeUser)
}

func scanMoveCounts(ctx context.Context, q string, args ...interface{}) (map[game.Move]int, error) {
	rows, err := DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("move frequency query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[game.Move]int, len(game.Moves))
	for rows.Next() {
		var mv game.Move
		var n int
		if err := rows.Scan(&mv, &n); err != nil {
			return nil, err
		}
		counts[mv] = n
	}
	return counts, rows.Err()
}
