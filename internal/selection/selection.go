// Package selection orders and samples practice questions for a user based on
// their exposure history: unseen questions come first, then the ones the user
// got wrong most often, then the ones seen longest ago.
package selection

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/pavelanni/codedrill/internal/model"
)

// Exposure is a user's history with one question.
type Exposure struct {
	Attempts  int
	Incorrect int
	LastSeen  time.Time
}

// Seen reports whether the user has answered the question before.
func (e Exposure) Seen() bool {
	return e.Attempts > 0
}

// BuildExposure folds attempt rows into per-question exposure.
func BuildExposure(attempts []model.QuestionAttempt) map[int64]Exposure {
	out := make(map[int64]Exposure)
	for _, a := range attempts {
		e := out[a.QuestionID]
		e.Attempts++
		if !a.Correct {
			e.Incorrect++
		}
		if a.CreatedAt.After(e.LastSeen) {
			e.LastSeen = a.CreatedAt
		}
		out[a.QuestionID] = e
	}
	return out
}

type ranked struct {
	q   model.Question
	exp Exposure
	key uint64
}

// less orders by never-seen, then most incorrect, then oldest seen, then random key.
func less(a, b ranked) bool {
	if a.exp.Seen() != b.exp.Seen() {
		return !a.exp.Seen()
	}
	if a.exp.Seen() {
		if a.exp.Incorrect != b.exp.Incorrect {
			return a.exp.Incorrect > b.exp.Incorrect
		}
		if !a.exp.LastSeen.Equal(b.exp.LastSeen) {
			return a.exp.LastSeen.Before(b.exp.LastSeen)
		}
	}
	return a.key < b.key
}

// order returns candidates sorted by priority, deduplicated by question ID.
func order(candidates []model.Question, history map[int64]Exposure, rng *rand.Rand) []ranked {
	seen := make(map[int64]bool, len(candidates))
	rs := make([]ranked, 0, len(candidates))
	for _, q := range candidates {
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		rs = append(rs, ranked{q: q, exp: history[q.ID], key: rng.Uint64()})
	}
	sort.SliceStable(rs, func(i, j int) bool { return less(rs[i], rs[j]) })
	return rs
}

// SelectPracticeQuestions returns up to count questions in priority order.
func SelectPracticeQuestions(candidates []model.Question, history map[int64]Exposure, count int, rng *rand.Rand) []model.Question {
	out := []model.Question{}
	if count <= 0 || len(candidates) == 0 {
		return out
	}
	for _, r := range order(candidates, history, rng) {
		if len(out) == count {
			break
		}
		out = append(out, r.q)
	}
	return out
}

// SelectMixedQuestions interleaves question types. Each round takes the
// highest-priority remaining question of every type, in canonical type order,
// until count questions are picked or all types run dry.
func SelectMixedQuestions(candidates []model.Question, history map[int64]Exposure, count int, rng *rand.Rand) []model.Question {
	out := []model.Question{}
	if count <= 0 || len(candidates) == 0 {
		return out
	}

	buckets := make(map[model.QuestionType][]model.Question)
	var extra []model.QuestionType
	for _, r := range order(candidates, history, rng) {
		t := r.q.Type
		if _, ok := buckets[t]; !ok && !t.IsValid() {
			extra = append(extra, t)
		}
		buckets[t] = append(buckets[t], r.q)
	}
	types := append(append([]model.QuestionType{}, model.QuestionTypes...), extra...)

	for len(out) < count {
		picked := false
		for _, t := range types {
			b := buckets[t]
			if len(b) == 0 {
				continue
			}
			out = append(out, b[0])
			buckets[t] = b[1:]
			picked = true
			if len(out) == count {
				break
			}
		}
		if !picked {
			break
		}
	}
	return out
}
