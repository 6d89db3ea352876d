// Package reward periodically turns post engagement into wincoin.
//
// Each pass drains every post's recent activity and computes
//
//	gain = (ln(max(up-down, 0) + 1) + ln(Σ 2/(1+e^(-c-1)) + 1)) / iteration
//
// where c is each recent commenter's total comment count on the post and
// iteration counts the passes the post has seen, starting at 1. The author
// receives authorPercentage of the gain and the rest is split evenly among
// the recent commenters.
package reward

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types"
)

// Store is the part of the domain store a pass works on.
type Store interface {
	Posts() []*memory.Post
	Drain(p *memory.Post) memory.Activity
	Credit(username string, amount float64, label string) error
}

// Publisher announces completed passes.
type Publisher interface {
	PublishRewardRound(round *types.RewardRoundEvent) error
}

// Round summarizes one pass.
type Round struct {
	Scanned     int
	Rewarded    int
	Credits     int
	Distributed float64
	Failures    int
	Duration    time.Duration
}

type Engine struct {
	store            Store
	publisher        Publisher
	authorPercentage float64
	interval         time.Duration
	logger           *slog.Logger
}

// NewEngine builds an engine. publisher may be nil.
func NewEngine(store Store, publisher Publisher, authorPercentage float64, interval time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:            store,
		publisher:        publisher,
		authorPercentage: math.Max(0, math.Min(100, authorPercentage)),
		interval:         interval,
		logger:           logger,
	}
}

// Gain computes the reward generated by one drained activity record.
func Gain(act memory.Activity) float64 {
	net := act.Upvotes - act.Downvotes
	if net < 0 {
		net = 0
	}

	var commentTerm float64
	for _, count := range act.Commenters {
		commentTerm += 2 / (1 + math.Exp(-float64(count)-1))
	}

	iteration := act.Iteration
	if iteration < 1 {
		iteration = 1
	}
	return (math.Log(float64(net)+1) + math.Log(commentTerm+1)) / float64(iteration)
}

// Run executes a pass every interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Reward engine started",
		"interval", e.interval.String(),
		"author_percentage", e.authorPercentage)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Reward engine shutting down")
			return nil
		case <-ticker.C:
			e.Pass()
		}
	}
}

// Pass drains every post once and credits the resulting rewards. A failure
// on one post is logged and does not stop the others.
func (e *Engine) Pass() Round {
	start := time.Now()
	var round Round

	for _, p := range e.store.Posts() {
		round.Scanned++

		credits, amount, err := e.rewardPost(p)
		round.Credits += credits
		round.Distributed += amount
		if credits > 0 {
			round.Rewarded++
		}
		if err != nil {
			round.Failures++
			e.logger.Error("Failed to reward post",
				slog.Int64("post", p.ID),
				slog.String("error", err.Error()))
		}
	}
	round.Duration = time.Since(start)

	e.logger.Info("Completed reward pass",
		"posts_scanned", round.Scanned,
		"posts_rewarded", round.Rewarded,
		"credits", round.Credits,
		"distributed", round.Distributed,
		"failures", round.Failures,
		"duration_ms", round.Duration.Milliseconds())

	if round.Credits > 0 && e.publisher != nil {
		err := e.publisher.PublishRewardRound(&types.RewardRoundEvent{
			Posts:       round.Rewarded,
			Credits:     round.Credits,
			Distributed: round.Distributed,
			CompletedAt: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			e.logger.Warn("Failed to announce reward round", slog.String("error", err.Error()))
		}
	}
	return round
}

func (e *Engine) rewardPost(p *memory.Post) (credits int, amount float64, err error) {
	act := e.store.Drain(p)

	gain := Gain(act)
	if gain <= 0 {
		return 0, 0, nil
	}

	authorShare := gain * e.authorPercentage / 100
	if authorShare > 0 {
		label := fmt.Sprintf("post %d author reward", p.ID)
		if err := e.store.Credit(p.Author, authorShare, label); err != nil {
			return credits, amount, fmt.Errorf("credit author %s: %w", p.Author, err)
		}
		credits++
		amount += authorShare
	}

	if len(act.Commenters) == 0 {
		return credits, amount, nil
	}

	perCommenter := (gain - authorShare) / float64(len(act.Commenters))
	if perCommenter <= 0 {
		return credits, amount, nil
	}

	var firstErr error
	label := fmt.Sprintf("post %d curator reward", p.ID)
	for name := range act.Commenters {
		if err := e.store.Credit(name, perCommenter, label); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("credit commenter %s: %w", name, err)
			}
			continue
		}
		credits++
		amount += perCommenter
	}
	return credits, amount, firstErr
}
