package services

import (
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const staleMatchMaxAge = 30 * time.Minute

// StartBattleScheduler runs the periodic jobs that keep battles moving
// without depending on any particular client being alive: queue sweeps,
// queue reaping, round timeouts and stale-match cleanup.
func StartBattleScheduler(queue *QueueService, battles *BattleService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every 2s: try to pair waiting players, language by language.
	_, err = sched.NewJob(
		gocron.DurationJob(2*time.Second),
		gocron.NewTask(func() {
			for _, lang := range queue.Languages() {
				for {
					pairing, ok := queue.Sweep(lang)
					if !ok {
						break
					}
					if _, err := battles.StartRankedMatch(*pairing); err != nil {
						log.Printf("[Scheduler] Failed to start match for %s pairing: %v", lang, err)
						// Hand the players back rather than leaving them stuck.
						if errors.Is(err, ErrNoQuestions) {
							queue.Join(pairing.PlayerA.UserID, pairing.PlayerA.Rating, pairing.Language)
							queue.Join(pairing.PlayerB.UserID, pairing.PlayerB.Rating, pairing.Language)
							break
						}
					}
				}
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// Every second: resolve rounds nobody answered in time.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Second),
		gocron.NewTask(battles.ResolveExpiredRounds),
	)
	if err != nil {
		return nil, err
	}

	// Every minute: drop players stuck in the queue and abandoned matches.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			for _, reaped := range queue.Reap(defaultQueueMaxAge) {
				log.Printf("[Scheduler] Queue entry expired: player %d (%s)", reaped.UserID, reaped.Language)
			}
			battles.CleanupStaleMatches(staleMatchMaxAge)
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Printf("Battle scheduler started")
	return sched, nil
}
