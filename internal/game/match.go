// internal/game/match.go
package game

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the lifecycle state of a match. A match transitions
// ONGOING -> FINISHED exactly once and never reverses.
type MatchStatus string

const (
	MatchOngoing  MatchStatus = "ONGOING"
	MatchFinished MatchStatus = "FINISHED"
)

// TerminationPolicy names how a match decides it is over. The two policies
// are deliberately distinct: bot matches end as soon as either side reaches
// WinningScore, while live head-to-head matches always play exactly
// FixedRoundCount resolved rounds.
type TerminationPolicy string

const (
	// PolicyFirstTo finishes the match the instant either score reaches
	// WinningScore. Used for bot matches.
	PolicyFirstTo TerminationPolicy = "first_to"
	// PolicyFixedRounds finishes the match when round FixedRoundCount
	// resolves, regardless of score. Used for live human matches.
	PolicyFixedRounds TerminationPolicy = "fixed_rounds"
)

const (
	// WinningScore is the target score under PolicyFirstTo.
	WinningScore = 2
	// FixedRoundCount is the number of resolved rounds under PolicyFixedRounds.
	FixedRoundCount = 3
)

// Match is one multi-round game between two participants. ParticipantB may
// be the bot identity.
type Match struct {
	ID           uuid.UUID         `json:"id"`
	ParticipantA uuid.UUID         `json:"participantA"`
	ParticipantB uuid.UUID         `json:"participantB"`
	ScoreA       int               `json:"scoreA"`
	ScoreB       int               `json:"scoreB"`
	CurrentRound int               `json:"currentRound"`
	Status       MatchStatus       `json:"status"`
	Policy       TerminationPolicy `json:"policy"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
}

// HasParticipant reports whether id is one of the match's two participants.
func (m *Match) HasParticipant(id uuid.UUID) bool {
	return m.ParticipantA == id || m.ParticipantB == id
}

// Round is one decision point within a match. Moves are nil until
// submitted. WinnerID stays nil forever on a draw round; the draw is
// replaced by a fresh round with the same number instead of advancing.
type Round struct {
	ID       uuid.UUID  `json:"id"`
	MatchID  uuid.UUID  `json:"matchId"`
	Number   int        `json:"number"`
	MoveA    *Move      `json:"moveA,omitempty"`
	MoveB    *Move      `json:"moveB,omitempty"`
	WinnerID *uuid.UUID `json:"winnerId,omitempty"`
}

// done reports whether the policy finishes the match after resolving
// roundNumber with the given scores.
func (p TerminationPolicy) done(scoreA, scoreB, roundNumber int) bool {
	switch p {
	case PolicyFirstTo:
		return scoreA >= WinningScore || scoreB >= WinningScore
	case PolicyFixedRounds:
		return roundNumber >= FixedRoundCount
	}
	return false
}
