// internal/game/rules_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDrawOnEqualMoves(t *testing.T) {
	for _, m := range Moves {
		assert.Equal(t, OutcomeDraw, Resolve(m, m), "equal moves must draw: %s", m)
	}
}

func TestResolveSymmetricUnderRoleSwap(t *testing.T) {
	for _, a := range Moves {
		for _, b := range Moves {
			if a == b {
				continue
			}
			if Resolve(a, b) == OutcomePlayer1 {
				assert.Equal(t, OutcomePlayer2, Resolve(b, a), "%s vs %s", b, a)
			} else {
				assert.Equal(t, OutcomePlayer1, Resolve(b, a), "%s vs %s", b, a)
			}
		}
	}
}

func TestResolveBeatsTable(t *testing.T) {
	assert.Equal(t, OutcomePlayer1, Resolve(MoveRock, MoveScissors))
	assert.Equal(t, OutcomePlayer1, Resolve(MoveScissors, MovePaper))
	assert.Equal(t, OutcomePlayer1, Resolve(MovePaper, MoveRock))
}

func TestValidMove(t *testing.T) {
	assert.True(t, ValidMove("ROCK"))
	assert.True(t, ValidMove("PAPER"))
	assert.True(t, ValidMove("SCISSORS"))
	assert.False(t, ValidMove("rock"))
	assert.False(t, ValidMove("LIZARD"))
	assert.False(t, ValidMove(""))
}

func TestRandomMoveIsLegal(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.True(t, ValidMove(string(RandomMove())))
	}
}
