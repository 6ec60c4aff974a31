// internal/game/engine.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State-conflict errors surfaced to callers. None of these are retried.
var (
	ErrMatchFinished  = errors.New("match is already finished")
	ErrAlreadyMoved   = errors.New("move already submitted for this round")
	ErrNotParticipant = errors.New("user is not a participant in this match")
	ErrOngoingMatch   = errors.New("an ongoing match already exists between these participants")
	ErrNoOpenRound    = errors.New("no open round for the current round number")
)

// MatchStore is the persistence contract the engine drives. FinishRound
// must apply the round update, the match update, and the optional next-round
// insert as a single atomic unit: a resolution either lands completely or
// not at all.
type MatchStore interface {
	InsertMatch(ctx context.Context, m *Match, first *Round) error
	MatchByID(ctx context.Context, id uuid.UUID) (*Match, error)
	OpenRound(ctx context.Context, matchID uuid.UUID, number int) (*Round, error)
	StoreMove(ctx context.Context, roundID uuid.UUID, asA bool, mv Move) error
	FinishRound(ctx context.Context, m *Match, r *Round, next *Round) error
	LatestRound(ctx context.Context, matchID uuid.UUID) (*Round, error)
}

// MoveResult is the outcome of one SubmitMove call. Pending means the
// opponent's move is still missing. On a resolved round NextRound carries
// the replay or follow-up round, or nil when the match finished.
type MoveResult struct {
	Pending   bool
	Match     *Match
	Round     *Round
	NextRound *Round
	Outcome   Outcome
}

// Engine owns the match lifecycle. Mutation is serialized per match id so
// two near-simultaneous submissions cannot both observe an incomplete round
// and double-resolve it. The store is never called while no match lock is
// held, and no lock is held across anything but store calls for that match.
type Engine struct {
	store MatchStore
	log   *logrus.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewEngine(store MatchStore, log *logrus.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockMatch returns the serialization mutex for one match id, creating it
// on first use.
func (e *Engine) lockMatch(id uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// releaseMatch drops the per-match mutex once the match can never be
// mutated again.
func (e *Engine) releaseMatch(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.locks, id)
}

// Create starts a new match between a and b at round 1, score 0-0, with an
// initial open round. Idempotency is the caller's concern; the store's
// insert rejects a second ongoing match for the same pair with
// ErrOngoingMatch.
func (e *Engine) Create(ctx context.Context, a, b uuid.UUID, policy TerminationPolicy) (*Match, *Round, error) {
	m := &Match{
		ID:           uuid.New(),
		ParticipantA: a,
		ParticipantB: b,
		CurrentRound: 1,
		Status:       MatchOngoing,
		Policy:       policy,
	}
	r := &Round{
		ID:      uuid.New(),
		MatchID: m.ID,
		Number:  1,
	}
	if err := e.store.InsertMatch(ctx, m, r); err != nil {
		return nil, nil, err
	}
	e.log.WithFields(logrus.Fields{
		"match":  m.ID,
		"a":      a,
		"b":      b,
		"policy": policy,
	}).Info("match created")
	return m, r, nil
}

// SubmitMove records one participant's move for the current open round.
// With only one side present it returns a pending result. With both sides
// present it resolves the round: a draw replays the same round number, a
// win bumps the score and either advances the round or finishes the match
// per the match's termination policy.
func (e *Engine) SubmitMove(ctx context.Context, matchID, participantID uuid.UUID, mv Move) (*MoveResult, error) {
	l := e.lockMatch(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := e.store.MatchByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", matchID, err)
	}
	if !m.HasParticipant(participantID) {
		return nil, ErrNotParticipant
	}
	if m.Status == MatchFinished {
		return nil, ErrMatchFinished
	}

	r, err := e.store.OpenRound(ctx, matchID, m.CurrentRound)
	if err != nil {
		return nil, fmt.Errorf("load open round for match %s: %w", matchID, err)
	}

	asA := participantID == m.ParticipantA
	if (asA && r.MoveA != nil) || (!asA && r.MoveB != nil) {
		return nil, ErrAlreadyMoved
	}
	if asA {
		r.MoveA = &mv
	} else {
		r.MoveB = &mv
	}

	if r.MoveA == nil || r.MoveB == nil {
		if err := e.store.StoreMove(ctx, r.ID, asA, mv); err != nil {
			return nil, fmt.Errorf("store move for round %s: %w", r.ID, err)
		}
		return &MoveResult{Pending: true, Match: m, Round: r}, nil
	}

	return e.resolve(ctx, m, r)
}

// resolve finishes a round with both moves present. Called with the match
// lock held.
func (e *Engine) resolve(ctx context.Context, m *Match, r *Round) (*MoveResult, error) {
	outcome := Resolve(*r.MoveA, *r.MoveB)

	var next *Round
	switch outcome {
	case OutcomeDraw:
		// Replay: a fresh round with the same number; scores and the
		// match round counter stay put. The drawn round keeps a nil
		// winner forever.
		next = &Round{
			ID:      uuid.New(),
			MatchID: m.ID,
			Number:  r.Number,
		}
	case OutcomePlayer1:
		r.WinnerID = &m.ParticipantA
		m.ScoreA++
	case OutcomePlayer2:
		r.WinnerID = &m.ParticipantB
		m.ScoreB++
	}

	if outcome != OutcomeDraw {
		if m.Policy.done(m.ScoreA, m.ScoreB, r.Number) {
			now := time.Now().UTC()
			m.Status = MatchFinished
			m.FinishedAt = &now
		} else {
			m.CurrentRound = r.Number + 1
			next = &Round{
				ID:      uuid.New(),
				MatchID: m.ID,
				Number:  m.CurrentRound,
			}
		}
	}

	if err := e.store.FinishRound(ctx, m, r, next); err != nil {
		return nil, fmt.Errorf("persist round resolution for match %s: %w", m.ID, err)
	}

	if m.Status == MatchFinished {
		e.releaseMatch(m.ID)
		e.log.WithFields(logrus.Fields{
			"match":  m.ID,
			"scoreA": m.ScoreA,
			"scoreB": m.ScoreB,
		}).Info("match finished")
	}

	return &MoveResult{
		Match:     m,
		Round:     r,
		NextRound: next,
		Outcome:   outcome,
	}, nil
}

// GetState is a read-only projection of a match and its most recent round,
// used for display and reconnects.
func (e *Engine) GetState(ctx context.Context, matchID uuid.UUID) (*Match, *Round, error) {
	m, err := e.store.MatchByID(ctx, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("load match %s: %w", matchID, err)
	}
	r, err := e.store.LatestRound(ctx, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("load latest round for match %s: %w", matchID, err)
	}
	return m, r, nil
}
