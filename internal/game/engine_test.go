// internal/game/engine_test.go
package game

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory MatchStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	matches map[uuid.UUID]*Match
	rounds  map[uuid.UUID][]*Round // keyed by match id, insertion order
	fail    error
}

func newMemStore() *memStore {
	return &memStore{
		matches: make(map[uuid.UUID]*Match),
		rounds:  make(map[uuid.UUID][]*Round),
	}
}

func (s *memStore) InsertMatch(ctx context.Context, m *Match, first *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, existing := range s.matches {
		samePair := (existing.ParticipantA == m.ParticipantA && existing.ParticipantB == m.ParticipantB) ||
			(existing.ParticipantA == m.ParticipantB && existing.ParticipantB == m.ParticipantA)
		if samePair && existing.Status == MatchOngoing {
			return ErrOngoingMatch
		}
	}
	cm := *m
	cr := *first
	s.matches[m.ID] = &cm
	s.rounds[m.ID] = []*Round{&cr}
	return nil
}

func (s *memStore) MatchByID(ctx context.Context, id uuid.UUID) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, assertErr("match not found")
	}
	cm := *m
	return &cm, nil
}

func (s *memStore) OpenRound(ctx context.Context, matchID uuid.UUID, number int) (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds := s.rounds[matchID]
	for i := len(rounds) - 1; i >= 0; i-- {
		r := rounds[i]
		if r.Number == number && r.WinnerID == nil && !(r.MoveA != nil && r.MoveB != nil) {
			cr := *r
			return &cr, nil
		}
	}
	return nil, ErrNoOpenRound
}

func (s *memStore) StoreMove(ctx context.Context, roundID uuid.UUID, asA bool, mv Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, rounds := range s.rounds {
		for _, r := range rounds {
			if r.ID == roundID {
				if asA {
					r.MoveA = &mv
				} else {
					r.MoveB = &mv
				}
				return nil
			}
		}
	}
	return assertErr("round not found")
}

func (s *memStore) FinishRound(ctx context.Context, m *Match, r *Round, next *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	cm := *m
	s.matches[m.ID] = &cm
	rounds := s.rounds[m.ID]
	for i, existing := range rounds {
		if existing.ID == r.ID {
			cr := *r
			rounds[i] = &cr
		}
	}
	if next != nil {
		cn := *next
		s.rounds[m.ID] = append(rounds, &cn)
	}
	return nil
}

func (s *memStore) LatestRound(ctx context.Context, matchID uuid.UUID) (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds := s.rounds[matchID]
	if len(rounds) == 0 {
		return nil, assertErr("no rounds")
	}
	cr := *rounds[len(rounds)-1]
	return &cr, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func testEngine() (*Engine, *memStore) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	store := newMemStore()
	return NewEngine(store, logger), store
}

func TestCreateOpensFirstRound(t *testing.T) {
	e, _ := testEngine()
	a, b := uuid.New(), uuid.New()
	m, r, err := e.Create(context.Background(), a, b, PolicyFirstTo)
	require.NoError(t, err)
	assert.Equal(t, MatchOngoing, m.Status)
	assert.Equal(t, 1, m.CurrentRound)
	assert.Equal(t, 0, m.ScoreA)
	assert.Equal(t, 0, m.ScoreB)
	assert.Equal(t, 1, r.Number)
	assert.Nil(t, r.MoveA)
	assert.Nil(t, r.MoveB)
}

func TestCreateRejectsDuplicateOngoingPair(t *testing.T) {
	e, _ := testEngine()
	a, b := uuid.New(), uuid.New()
	_, _, err := e.Create(context.Background(), a, b, PolicyFirstTo)
	require.NoError(t, err)
	_, _, err = e.Create(context.Background(), b, a, PolicyFirstTo)
	assert.ErrorIs(t, err, ErrOngoingMatch)
}

func TestSubmitMoveValidation(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	m, _, err := e.Create(ctx, a, b, PolicyFirstTo)
	require.NoError(t, err)

	_, err = e.SubmitMove(ctx, m.ID, uuid.New(), MoveRock)
	assert.ErrorIs(t, err, ErrNotParticipant)

	res, err := e.SubmitMove(ctx, m.ID, a, MoveRock)
	require.NoError(t, err)
	assert.True(t, res.Pending)

	_, err = e.SubmitMove(ctx, m.ID, a, MovePaper)
	assert.ErrorIs(t, err, ErrAlreadyMoved)
}

func TestDrawReplaysSameRoundNumber(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	m, _, err := e.Create(ctx, a, b, PolicyFirstTo)
	require.NoError(t, err)

	_, err = e.SubmitMove(ctx, m.ID, a, MoveRock)
	require.NoError(t, err)
	res, err := e.SubmitMove(ctx, m.ID, b, MoveRock)
	require.NoError(t, err)

	assert.False(t, res.Pending)
	assert.Equal(t, OutcomeDraw, res.Outcome)
	assert.Nil(t, res.Round.WinnerID, "draw rounds never get a winner")
	require.NotNil(t, res.NextRound)
	assert.Equal(t, 1, res.NextRound.Number, "replay keeps the round number")
	assert.Equal(t, 0, res.Match.ScoreA)
	assert.Equal(t, 0, res.Match.ScoreB)
	assert.Equal(t, 1, res.Match.CurrentRound)
}

func TestFirstToPolicyFinishesAtWinningScore(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	m, _, err := e.Create(ctx, a, b, PolicyFirstTo)
	require.NoError(t, err)

	// Round 1: A wins.
	_, err = e.SubmitMove(ctx, m.ID, a, MoveRock)
	require.NoError(t, err)
	res, err := e.SubmitMove(ctx, m.ID, b, MoveScissors)
	require.NoError(t, err)
	assert.Equal(t, MatchOngoing, res.Match.Status)
	assert.Equal(t, 2, res.Match.CurrentRound)

	// Round 2: A wins again and the match ends immediately at 2-0.
	_, err = e.SubmitMove(ctx, m.ID, a, MovePaper)
	require.NoError(t, err)
	res, err = e.SubmitMove(ctx, m.ID, b, MoveRock)
	require.NoError(t, err)
	assert.Equal(t, MatchFinished, res.Match.Status)
	assert.Equal(t, 2, res.Match.ScoreA)
	require.NotNil(t, res.Match.FinishedAt)
	assert.Nil(t, res.NextRound, "no trailing round after finish")

	_, err = e.SubmitMove(ctx, m.ID, a, MoveRock)
	assert.ErrorIs(t, err, ErrMatchFinished)
}

func TestFixedRoundsPolicyFinishesAtRoundThree(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	m, _, err := e.Create(ctx, a, b, PolicyFixedRounds)
	require.NoError(t, err)

	// A wins rounds 1, 2 and 3; under fixed-length the match only ends
	// when round 3 resolves even though the score gap is decisive earlier.
	for i := 1; i <= 3; i++ {
		_, err = e.SubmitMove(ctx, m.ID, a, MoveRock)
		require.NoError(t, err)
		res, err := e.SubmitMove(ctx, m.ID, b, MoveScissors)
		require.NoError(t, err)
		if i < 3 {
			assert.Equal(t, MatchOngoing, res.Match.Status, "round %d", i)
		} else {
			assert.Equal(t, MatchFinished, res.Match.Status)
			assert.Equal(t, 3, res.Match.ScoreA)
		}
	}
}

// TestBotMatchScenario walks the end-to-end sequence: win, draw replay,
// loss, then the deciding round under the first-to-2 policy.
func TestBotMatchScenario(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	m, _, err := e.Create(ctx, a, b, PolicyFirstTo)
	require.NoError(t, err)

	submitBoth := func(mvA, mvB Move) *MoveResult {
		t.Helper()
		_, err := e.SubmitMove(ctx, m.ID, a, mvA)
		require.NoError(t, err)
		res, err := e.SubmitMove(ctx, m.ID, b, mvB)
		require.NoError(t, err)
		return res
	}

	// Round 1: A=ROCK beats B=SCISSORS, 1-0, advance to round 2.
	res := submitBoth(MoveRock, MoveScissors)
	assert.Equal(t, OutcomePlayer1, res.Outcome)
	assert.Equal(t, 1, res.Match.ScoreA)
	assert.Equal(t, 2, res.Match.CurrentRound)

	// Round 2: ROCK/ROCK draw, round stays at 2 with a fresh round.
	res = submitBoth(MoveRock, MoveRock)
	assert.Equal(t, OutcomeDraw, res.Outcome)
	assert.Equal(t, 2, res.Match.CurrentRound)
	require.NotNil(t, res.NextRound)
	assert.Equal(t, 2, res.NextRound.Number)

	// Round 2 replay: B=SCISSORS beats A=PAPER, 1-1, advance to round 3.
	res = submitBoth(MovePaper, MoveScissors)
	assert.Equal(t, OutcomePlayer2, res.Outcome)
	assert.Equal(t, 1, res.Match.ScoreA)
	assert.Equal(t, 1, res.Match.ScoreB)
	assert.Equal(t, 3, res.Match.CurrentRound)

	// Round 3: A=SCISSORS beats B=PAPER, 2-1, match over.
	res = submitBoth(MoveScissors, MovePaper)
	assert.Equal(t, OutcomePlayer1, res.Outcome)
	assert.Equal(t, MatchFinished, res.Match.Status)
	assert.Equal(t, 2, res.Match.ScoreA)
	assert.Equal(t, 1, res.Match.ScoreB)
	require.NotNil(t, res.Match.FinishedAt)
}

// TestConcurrentSubmitsResolveOnce races both participants' submissions
// for the same round. Exactly one submission may resolve it: the other
// lands first and reports pending.
func TestConcurrentSubmitsResolveOnce(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		e, store := testEngine()
		a, b := uuid.New(), uuid.New()
		m, _, err := e.Create(ctx, a, b, PolicyFirstTo)
		require.NoError(t, err)

		results := make(chan *MoveResult, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := e.SubmitMove(ctx, m.ID, a, MoveRock)
			assert.NoError(t, err)
			results <- res
		}()
		go func() {
			defer wg.Done()
			res, err := e.SubmitMove(ctx, m.ID, b, MoveScissors)
			assert.NoError(t, err)
			results <- res
		}()
		wg.Wait()
		close(results)

		pending, resolved := 0, 0
		for res := range results {
			if res == nil {
				continue
			}
			if res.Pending {
				pending++
			} else {
				resolved++
			}
		}
		assert.Equal(t, 1, pending, "iteration %d", i)
		assert.Equal(t, 1, resolved, "iteration %d", i)

		// One resolution: A's win counted once, round advanced once.
		gotMatch, gotRound, err := e.GetState(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, gotMatch.ScoreA, "iteration %d", i)
		assert.Equal(t, 0, gotMatch.ScoreB, "iteration %d", i)
		assert.Equal(t, 2, gotMatch.CurrentRound, "iteration %d", i)
		assert.Equal(t, 2, gotRound.Number, "iteration %d", i)

		store.mu.Lock()
		assert.Len(t, store.rounds[m.ID], 2, "iteration %d", i)
		store.mu.Unlock()
	}
}

func TestGetStateReturnsLatestRound(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	m, _, err := e.Create(ctx, a, b, PolicyFirstTo)
	require.NoError(t, err)

	_, err = e.SubmitMove(ctx, m.ID, a, MoveRock)
	require.NoError(t, err)
	_, err = e.SubmitMove(ctx, m.ID, b, MoveScissors)
	require.NoError(t, err)

	gotMatch, gotRound, err := e.GetState(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotMatch.CurrentRound)
	assert.Equal(t, 2, gotRound.Number)
	assert.Nil(t, gotRound.MoveA)
}

func TestStoreFailureLeavesNothingPartial(t *testing.T) {
	e, store := testEngine()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	m, _, err := e.Create(ctx, a, b, PolicyFirstTo)
	require.NoError(t, err)

	_, err = e.SubmitMove(ctx, m.ID, a, MoveRock)
	require.NoError(t, err)

	store.fail = assertErr("store down")
	_, err = e.SubmitMove(ctx, m.ID, b, MoveScissors)
	require.Error(t, err)
	store.fail = nil

	// Nothing was committed: match untouched, round still open for B.
	gotMatch, gotRound, err := e.GetState(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotMatch.ScoreA)
	assert.Equal(t, 1, gotMatch.CurrentRound)
	assert.Nil(t, gotRound.MoveB)

	res, err := e.SubmitMove(ctx, m.ID, b, MoveScissors)
	require.NoError(t, err)
	assert.Equal(t, OutcomePlayer1, res.Outcome)
}
