// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/throwdown-gg/throwdown/internal/game"
)

// Matches implements game.MatchStore against the pgx pool.
type Matches struct{}

// InsertMatch creates the match row and its first round. The ongoing-pair
// check runs inside the same transaction as the insert so two concurrent
// creates for one pair cannot both succeed.
func (Matches) InsertMatch(ctx context.Context, m *game.Match, first *game.Round) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var exists bool
		dupQ := `
			SELECT EXISTS (
				SELECT 1 FROM matches
				WHERE status='ONGOING'
				  AND ((participant_a=$1 AND participant_b=$2)
				    OR (participant_a=$2 AND participant_b=$1))
			)
		`
		if err := tx.QueryRow(ctx, dupQ, m.ParticipantA, m.ParticipantB).Scan(&exists); err != nil {
			return fmt.Errorf("ongoing match check: %w", err)
		}
		if exists {
			return game.ErrOngoingMatch
		}

		insM := `
			INSERT INTO matches (id, participant_a, participant_b, score_a, score_b,
			                     current_round, status, policy)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.Exec(ctx, insM,
			m.ID, m.ParticipantA, m.ParticipantB, m.ScoreA, m.ScoreB,
			m.CurrentRound, m.Status, m.Policy,
		); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		insR := `INSERT INTO rounds (id, match_id, number) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, insR, first.ID, first.MatchID, first.Number); err != nil {
			return fmt.Errorf("insert first round: %w", err)
		}
		return nil
	})
}

func (Matches) MatchByID(ctx context.Context, id uuid.UUID) (*game.Match, error) {
	var m game.Match
	q := `
		SELECT id, participant_a, participant_b, score_a, score_b,
		       current_round, status, policy, finished_at
		FROM matches
		WHERE id=$1
	`
	err := DB.QueryRow(ctx, q, id).Scan(
		&m.ID, &m.ParticipantA, &m.ParticipantB, &m.ScoreA, &m.ScoreB,
		&m.CurrentRound, &m.Status, &m.Policy, &m.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// OpenRound returns the unresolved round for (match, number): no winner and
// not both moves present. Drawn rounds are complete once both moves land,
// so the most recent insert for that number is the open one.
func (Matches) OpenRound(ctx context.Context, matchID uuid.UUID, number int) (*game.Round, error) {
	var r game.Round
	q := `
		SELECT id, match_id, number, move_a, move_b, winner_id
		FROM rounds
		WHERE match_id=$1 AND number=$2
		  AND winner_id IS NULL
		  AND NOT (move_a IS NOT NULL AND move_b IS NOT NULL)
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := DB.QueryRow(ctx, q, matchID, number).Scan(
		&r.ID, &r.MatchID, &r.Number, &r.MoveA, &r.MoveB, &r.WinnerID,
	)
	if err == pgx.ErrNoRows {
		return nil, game.ErrNoOpenRound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// StoreMove writes one side's move on a round that is still waiting for
// the opponent.
func (Matches) StoreMove(ctx context.Context, roundID uuid.UUID, asA bool, mv game.Move) error {
	col := "move_b"
	if asA {
		col = "move_a"
	}
	q := fmt.Sprintf(`UPDATE rounds SET %s=$1 WHERE id=$2 AND %s IS NULL`, col, col)
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, mv, roundID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return game.ErrAlreadyMoved
		}
		return nil
	})
}

// FinishRound persists a round resolution: the round's final moves and
// winner, the match's scores/round/status, and the optional follow-up
// round, all in one transaction.
func (Matches) FinishRound(ctx context.Context, m *game.Match, r *game.Round, next *game.Round) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		updR := `UPDATE rounds SET move_a=$1, move_b=$2, winner_id=$3 WHERE id=$4`
		if _, err := tx.Exec(ctx, updR, r.MoveA, r.MoveB, r.WinnerID, r.ID); err != nil {
			return fmt.Errorf("update round: %w", err)
		}

		updM := `
			UPDATE matches
			SET score_a=$1, score_b=$2, current_round=$3, status=$4, finished_at=$5
			WHERE id=$6
		`
		if _, err := tx.Exec(ctx, updM,
			m.ScoreA, m.ScoreB, m.CurrentRound, m.Status, m.FinishedAt, m.ID,
		); err != nil {
			return fmt.Errorf("update match: %w", err)
		}

		if next != nil {
			insR := `INSERT INTO rounds (id, match_id, number) VALUES ($1, $2, $3)`
			if _, err := tx.Exec(ctx, insR, next.ID, next.MatchID, next.Number); err != nil {
				return fmt.Errorf("insert next round: %w", err)
			}
		}
		return nil
	})
}

func (Matches) LatestRound(ctx context.Context, matchID uuid.UUID) (*game.Round, error) {
	var r game.Round
	q := `
		SELECT id, match_id, number, move_a, move_b, winner_id
		FROM rounds
		WHERE match_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := DB.QueryRow(ctx, q, matchID).Scan(
		&r.ID, &r.MatchID, &r.Number, &r.MoveA, &r.MoveB, &r.WinnerID,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// OngoingMatchBetween returns the id of the non-finished match between a
// and b, if one exists. Handlers use it to rejoin instead of recreating.
func OngoingMatchBetween(ctx context.Context, a, b uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	q := `
		SELECT id FROM matches
		WHERE status='ONGOING'
		  AND ((participant_a=$1 AND participant_b=$2)
		    OR (participant_a=$2 AND participant_b=$1))
		LIMIT 1
	`
	err := DB.QueryRow(ctx, q, a, b).Scan(&id)
	if err == pgx.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}
