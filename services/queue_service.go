package services

import (
	"log"
	"sort"
	"sync"
	"time"
)

const (
	baseRatingTolerance    = 150
	widenedRatingTolerance = 200
	toleranceWidenAfter    = 90 * time.Second
	defaultQueueMaxAge     = 15 * time.Minute
)

// QueuedPlayer is one waiting entry in a language pool. Owned exclusively by
// the QueueService; callers only ever see copies.
type QueuedPlayer struct {
	UserID   uint      `json:"user_id"`
	Rating   int       `json:"rating"`
	Language string    `json:"language"`
	JoinedAt time.Time `json:"joined_at"`
}

// Pairing is the outcome of a successful sweep: two players pulled out of a
// pool together.
type Pairing struct {
	PlayerA  QueuedPlayer
	PlayerB  QueuedPlayer
	Language string
}

// QueueService maintains per-language pools of players waiting for a ranked
// opponent. A single mutex guards all pools; pool sizes are small enough
// that finer locking buys nothing.
type QueueService struct {
	mu    sync.Mutex
	pools map[string][]*QueuedPlayer
	now   func() time.Time
}

func NewQueueService() *QueueService {
	return &QueueService{
		pools: make(map[string][]*QueuedPlayer),
		now:   time.Now,
	}
}

// Join adds a player to the pool for their language. Returns false if the
// player is already queued in any language; that is not an error, just a
// duplicate request.
func (q *QueueService) Join(userID uint, rating int, language string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, pool := range q.pools {
		for _, p := range pool {
			if p.UserID == userID {
				return false
			}
		}
	}

	q.pools[language] = append(q.pools[language], &QueuedPlayer{
		UserID:   userID,
		Rating:   rating,
		Language: language,
		JoinedAt: q.now(),
	})
	log.Printf("Player %d joined %s queue with rating %d (pool size %d)", userID, language, rating, len(q.pools[language]))
	return true
}

// Leave removes a player from whichever pool holds them. Returns false if
// the player was not queued.
func (q *QueueService) Leave(userID uint) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for lang, pool := range q.pools {
		for i, p := range pool {
			if p.UserID == userID {
				q.pools[lang] = append(pool[:i], pool[i+1:]...)
				log.Printf("Player %d left %s queue", userID, lang)
				return true
			}
		}
	}
	return false
}

// IsQueued reports whether the player is currently waiting in any pool.
func (q *QueueService) IsQueued(userID uint) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, pool := range q.pools {
		for _, p := range pool {
			if p.UserID == userID {
				return true
			}
		}
	}
	return false
}

// Languages returns a snapshot of the languages that currently have at least
// one waiting player, for the sweep scheduler.
func (q *QueueService) Languages() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	langs := make([]string, 0, len(q.pools))
	for lang, pool := range q.pools {
		if len(pool) > 0 {
			langs = append(langs, lang)
		}
	}
	return langs
}

// Sweep tries to produce one pairing from the given language pool. Players
// are scanned in ascending rating order; each candidate accepts the closest
// later entry within their tolerance, which widens from 150 to 200 rating
// points after 90 seconds of waiting. Absence of a pairing is a normal
// outcome, not an error.
func (q *QueueService) Sweep(language string) (*Pairing, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pool := q.pools[language]
	if len(pool) < 2 {
		return nil, false
	}

	sorted := make([]*QueuedPlayer, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rating < sorted[j].Rating })

	now := q.now()
	for i, candidate := range sorted {
		allowedDiff := baseRatingTolerance
		if now.Sub(candidate.JoinedAt) >= toleranceWidenAfter {
			allowedDiff = widenedRatingTolerance
		}

		var best *QueuedPlayer
		bestDiff := allowedDiff + 1
		for _, other := range sorted[i+1:] {
			diff := other.Rating - candidate.Rating
			if diff < 0 {
				diff = -diff
			}
			if diff <= allowedDiff && diff < bestDiff {
				best = other
				bestDiff = diff
			}
		}
		if best == nil {
			continue
		}

		q.removeLocked(language, candidate.UserID)
		q.removeLocked(language, best.UserID)
		log.Printf("Matched players %d (%d) and %d (%d) in %s, diff %d",
			candidate.UserID, candidate.Rating, best.UserID, best.Rating, language, bestDiff)
		return &Pairing{PlayerA: *candidate, PlayerB: *best, Language: language}, true
	}
	return nil, false
}

// Reap removes and returns every player who has waited longer than maxAge,
// across all languages, so callers can notify them.
func (q *QueueService) Reap(maxAge time.Duration) []QueuedPlayer {
	if maxAge <= 0 {
		maxAge = defaultQueueMaxAge
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var reaped []QueuedPlayer
	for lang, pool := range q.pools {
		kept := pool[:0]
		for _, p := range pool {
			if now.Sub(p.JoinedAt) > maxAge {
				reaped = append(reaped, *p)
			} else {
				kept = append(kept, p)
			}
		}
		q.pools[lang] = kept
	}
	if len(reaped) > 0 {
		log.Printf("Reaped %d stale queue entries", len(reaped))
	}
	return reaped
}

// removeLocked removes one player from a pool. Caller holds q.mu.
func (q *QueueService) removeLocked(language string, userID uint) {
	pool := q.pools[language]
	for i, p := range pool {
		if p.UserID == userID {
			q.pools[language] = append(pool[:i], pool[i+1:]...)
			return
		}
	}
}
