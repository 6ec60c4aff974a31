// internal/game/rules.go
package game

import "math/rand"

// Move is one of the three throws, using the wire spelling clients send.
type Move string

const (
	MoveRock     Move = "ROCK"
	MovePaper    Move = "PAPER"
	MoveScissors Move = "SCISSORS"
)

// Moves lists every legal move in a fixed order, used for iteration and
// weighted sampling.
var Moves = [3]Move{MoveRock, MovePaper, MoveScissors}

// beats maps each move to the move it defeats.
var beats = map[Move]Move{
	MoveRock:     MoveScissors,
	MoveScissors: MovePaper,
	MovePaper:    MoveRock,
}

// Outcome is the result of one round relative to participant A.
type Outcome string

const (
	OutcomePlayer1 Outcome = "PLAYER1"
	OutcomePlayer2 Outcome = "PLAYER2"
	OutcomeDraw    Outcome = "DRAW"
)

// ValidMove reports whether s is a legal wire move.
func ValidMove(s string) bool {
	switch Move(s) {
	case MoveRock, MovePaper, MoveScissors:
		return true
	}
	return false
}

// Resolve returns the outcome of moveA vs moveB from participant A's perspective.
func Resolve(moveA, moveB Move) Outcome {
	if moveA == moveB {
		return OutcomeDraw
	}
	if beats[moveA] == moveB {
		return OutcomePlayer1
	}
	return OutcomePlayer2
}

// RandomMove returns a uniformly random move. Used when there is no
// adaptive signal to act on.
func RandomMove() Move {
	return Moves[rand.Intn(len(Moves))]
}
