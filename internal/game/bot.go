// internal/game/bot.go
package game

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

const (
	// SampleSizeThreshold is the number of observed moves at which the bot
	// fully trusts a user's personal history over the population average.
	SampleSizeThreshold = 20
	// MaxMoveChance caps any single move's selection percentage, bounding
	// how predictable the bot can become against a skewed opponent.
	MaxMoveChance = 50.0
	// flatWeightBonus keeps every move's weight strictly positive.
	flatWeightBonus = 5.0
	// maxCapIterations bounds the cap-and-redistribute loop.
	maxCapIterations = 6
)

// StatsProvider supplies historical move counts from the persistent store.
// MoveFrequencies returns userID's move counts against opponents other than
// excludeOpponent; PopulationMoveFrequencies returns counts across all
// users excluding games that involve excludeUser.
type StatsProvider interface {
	MoveFrequencies(ctx context.Context, userID, excludeOpponent uuid.UUID) (map[Move]int, error)
	PopulationMoveFrequencies(ctx context.Context, excludeUser uuid.UUID) (map[Move]int, error)
}

// Bot picks an adversarial move from an opponent model built out of the
// requesting user's move history blended with the population average.
// Stateless per call.
type Bot struct {
	stats StatsProvider
	randF func() float64
}

func NewBot(stats StatsProvider) *Bot {
	return &Bot{stats: stats, randF: rand.Float64}
}

// ChooseMove returns the bot's move against userID. A failure to fetch
// statistics propagates to the caller; the bot never guesses a move on
// incomplete data beyond the documented cold-start fallback.
func (b *Bot) ChooseMove(ctx context.Context, userID, botID uuid.UUID) (Move, error) {
	personal, err := b.stats.MoveFrequencies(ctx, userID, botID)
	if err != nil {
		return "", fmt.Errorf("fetch move frequencies for %s: %w", userID, err)
	}
	population, err := b.stats.PopulationMoveFrequencies(ctx, botID)
	if err != nil {
		return "", fmt.Errorf("fetch population move frequencies: %w", err)
	}

	predicted := predictFrequencies(personal, population)
	weights := counterWeights(predicted)
	weights = normalizePercentages(weights)
	weights = capPercentages(weights)

	return b.sample(weights), nil
}

// predictFrequencies blends the user's personal move percentages with the
// population average, weighted by how much personal history exists. With no
// history at all every move predicts at 100/3.
func predictFrequencies(personal, population map[Move]int) map[Move]float64 {
	personalPct := toPercentages(personal)
	populationPct := toPercentages(population)

	observed := 0
	for _, n := range personal {
		observed += n
	}
	c := float64(observed) / SampleSizeThreshold
	if c > 1 {
		c = 1
	}

	predicted := make(map[Move]float64, len(Moves))
	for _, m := range Moves {
		predicted[m] = personalPct[m]*c + populationPct[m]*(1-c)
	}
	return predicted
}

// toPercentages converts raw counts into percentages summing to 100, or a
// uniform 100/3 split when there are no counts.
func toPercentages(counts map[Move]int) map[Move]float64 {
	total := 0
	for _, m := range Moves {
		total += counts[m]
	}
	pct := make(map[Move]float64, len(Moves))
	if total == 0 {
		for _, m := range Moves {
			pct[m] = 100.0 / float64(len(Moves))
		}
		return pct
	}
	for _, m := range Moves {
		pct[m] = float64(counts[m]) * 100.0 / float64(total)
	}
	return pct
}

// counterWeights maps predicted opponent frequencies to bot move weights:
// each move is weighted by the predicted frequency of the move it beats,
// plus a flat bonus so no move ever weighs zero.
func counterWeights(predicted map[Move]float64) map[Move]float64 {
	weights := make(map[Move]float64, len(Moves))
	for _, m := range Moves {
		weights[m] = predicted[beats[m]] + flatWeightBonus
	}
	return weights
}

// normalizePercentages scales weights to sum to 100, falling back to a
// uniform split when the total is not positive.
func normalizePercentages(weights map[Move]float64) map[Move]float64 {
	total := 0.0
	for _, m := range Moves {
		total += weights[m]
	}
	out := make(map[Move]float64, len(Moves))
	if total <= 0 {
		for _, m := range Moves {
			out[m] = 100.0 / float64(len(Moves))
		}
		return out
	}
	for _, m := range Moves {
		out[m] = weights[m] * 100.0 / total
	}
	return out
}

// capPercentages bounds every percentage at MaxMoveChance, redistributing
// the excess proportionally among moves still under the cap. Iterates until
// nothing exceeds the cap or the iteration bound is hit.
func capPercentages(weights map[Move]float64) map[Move]float64 {
	out := make(map[Move]float64, len(Moves))
	for _, m := range Moves {
		out[m] = weights[m]
	}
	for i := 0; i < maxCapIterations; i++ {
		excess := 0.0
		underTotal := 0.0
		for _, m := range Moves {
			if out[m] > MaxMoveChance {
				excess += out[m] - MaxMoveChance
				out[m] = MaxMoveChance
			} else {
				underTotal += out[m]
			}
		}
		if excess == 0 || underTotal == 0 {
			break
		}
		for _, m := range Moves {
			if out[m] < MaxMoveChance {
				out[m] += excess * (out[m] / underTotal)
			}
		}
	}
	return out
}

// sample runs cumulative-weight roulette selection against a single uniform
// draw. Degenerate weights fall back to a uniform random move.
func (b *Bot) sample(weights map[Move]float64) Move {
	total := 0.0
	for _, m := range Moves {
		if weights[m] > 0 {
			total += weights[m]
		}
	}
	if total <= 0 {
		return RandomMove()
	}
	r := b.randF() * total
	cum := 0.0
	for _, m := range Moves {
		if weights[m] <= 0 {
			continue
		}
		cum += weights[m]
		if r < cum {
			return m
		}
	}
	return Moves[len(Moves)-1]
}
