package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"lingobattle/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const snapshotTTL = 2 * time.Hour

// BattleService owns the mapping from queue pairings to live matches, drives
// round lifecycle, applies rating changes and guarantees each match outcome
// is persisted exactly once.
type BattleService struct {
	registry  *MatchRegistry
	questions QuestionSupply
	ratings   RatingStore
	outcomes  OutcomeStore
	notifier  Notifier
	redis     *redis.Client
	season    string

	// matchOps serializes round resolution and finalize per match id, so a
	// timeout sweep and a player-driven resolve never race. Values are
	// *sync.Mutex.
	matchOps sync.Map
}

func NewBattleService(questions QuestionSupply, ratings RatingStore, outcomes OutcomeStore, notifier Notifier, redisClient *redis.Client, season string) *BattleService {
	return &BattleService{
		registry:  NewMatchRegistry(),
		questions: questions,
		ratings:   ratings,
		outcomes:  outcomes,
		notifier:  notifier,
		redis:     redisClient,
		season:    season,
	}
}

// PlayerOutcome is one side of a finalized match.
type PlayerOutcome struct {
	UserID      uint   `json:"user_id"`
	Result      string `json:"result"` // win, loss, draw
	RatingDelta int    `json:"rating_delta"`
	RatingAfter int    `json:"rating_after"`
}

// FinalizeResult is what Finalize returns, whether it did the write or
// replayed an already-persisted one.
type FinalizeResult struct {
	MatchID  string          `json:"match_id"`
	Reason   OutcomeReason   `json:"reason"`
	WinnerID *uint           `json:"winner_id"`
	Outcomes []PlayerOutcome `json:"outcomes"` // ordered by user id
}

// InitializeMatch creates the live state and placeholder result rows for a
// pairing. Idempotent: a second call for the same match id returns the
// resident state untouched.
func (s *BattleService) InitializeMatch(matchID string, playerA, playerB uint, language string, winsRequired int, isRoom bool, roomID *uint) (*MatchState, error) {
	if existing, ok := s.registry.Get(matchID); ok {
		return existing, nil
	}

	count := QuestionCountFor(winsRequired)
	questions, err := s.questions.PickForBattle(language, count)
	if err != nil {
		return nil, err
	}
	if len(questions) < count {
		return nil, fmt.Errorf("%w: need %d %s questions, got %d", ErrNoQuestions, count, language, len(questions))
	}
	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})

	match := NewMatchState(matchID, playerA, playerB, language, winsRequired, questions[:count])
	match.IsRoomMatch = isRoom
	match.RoomID = roomID

	resident, inserted := s.registry.Put(match)
	if !inserted {
		return resident, nil
	}

	placeholders := []models.MatchResult{
		{MatchID: matchID, UserID: playerA, OpponentID: playerB, Language: language},
		{MatchID: matchID, UserID: playerB, OpponentID: playerA, Language: language},
	}
	if err := s.outcomes.CreatePlaceholders(placeholders); err != nil {
		s.registry.Remove(matchID)
		return nil, fmt.Errorf("failed to create placeholder results: %w", err)
	}

	log.Printf("Match %s initialized: %d vs %d (%s, best of %d, room=%v)", matchID, playerA, playerB, language, winsRequired, isRoom)
	return match, nil
}

// StartRankedMatch turns a queue pairing into a running match and announces
// it. On insufficient content the players are handed back to the caller via
// the error so they can be re-queued.
func (s *BattleService) StartRankedMatch(p Pairing) (*MatchState, error) {
	matchID := uuid.NewString()
	match, err := s.InitializeMatch(matchID, p.PlayerA.UserID, p.PlayerB.UserID, p.Language, DefaultWinsRequired, false, nil)
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastToMatch(matchID, "match_paired", map[string]interface{}{
		"match_id": matchID,
		"player_a": p.PlayerA.UserID,
		"player_b": p.PlayerB.UserID,
		"language": p.Language,
	})

	if err := match.Start(); err != nil {
		return nil, err
	}
	s.storeSnapshot(match)
	s.broadcastRoundStart(match)
	return match, nil
}

// StartRoomMatch spawns the unranked fixed-format variant for a friend room.
func (s *BattleService) StartRoomMatch(room *models.BattleRoom, guestID uint) (*MatchState, error) {
	matchID := uuid.NewString()
	roomID := room.ID
	match, err := s.InitializeMatch(matchID, room.HostID, guestID, room.Language, DefaultWinsRequired, true, &roomID)
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastToMatch(matchID, "match_paired", map[string]interface{}{
		"match_id":  matchID,
		"player_a":  room.HostID,
		"player_b":  guestID,
		"language":  room.Language,
		"room_code": room.Code,
	})

	if err := match.Start(); err != nil {
		return nil, err
	}
	s.storeSnapshot(match)
	s.broadcastRoundStart(match)
	return match, nil
}

// SubmitAnswer records one player's answer and, once both are in, resolves
// the round.
func (s *BattleService) SubmitAnswer(matchID string, userID uint, rawAnswer string) error {
	match, ok := s.registry.Get(matchID)
	if !ok {
		return ErrMatchNotFound
	}

	bothIn, err := match.RecordAnswer(userID, rawAnswer)
	if err != nil {
		return err
	}
	if bothIn {
		return s.resolveRound(match)
	}
	return nil
}

// Surrender ends the match in the opponent's favor and finalizes it.
func (s *BattleService) Surrender(matchID string, userID uint) (*FinalizeResult, error) {
	match, ok := s.registry.Get(matchID)
	if !ok {
		return nil, ErrMatchNotFound
	}
	if err := match.ForceFinish(userID); err != nil {
		return nil, err
	}
	return s.Finalize(matchID, ReasonSurrender)
}

// HandleDisconnect is fed by the transport layer when a player's connection
// drops mid-match.
func (s *BattleService) HandleDisconnect(matchID string, userID uint) {
	match, ok := s.registry.Get(matchID)
	if !ok {
		return
	}
	if err := match.ForceFinish(userID); err != nil {
		// Already finished; finalize below is a no-op replay at worst.
		log.Printf("Disconnect on match %s after finish: %v", matchID, err)
	}
	if _, err := s.Finalize(matchID, ReasonDisconnect); err != nil {
		log.Printf("Failed to finalize match %s after disconnect of %d: %v", matchID, userID, err)
	}
}

// ResolveExpiredRounds is the liveness sweep: any match whose round window
// has passed gets resolved without waiting on a client action.
func (s *BattleService) ResolveExpiredRounds() {
	for _, match := range s.registry.All() {
		if match.IsRoundTimedOut() {
			if err := s.resolveRound(match); err != nil {
				log.Printf("Failed to resolve expired round for match %s: %v", match.ID, err)
			}
		}
	}
}

// CleanupStaleMatches force-finalizes matches that have outlived maxAge,
// e.g. because both players vanished before any disconnect was reported.
// The outcome is decided by the win counts as they stand.
func (s *BattleService) CleanupStaleMatches(maxAge time.Duration) {
	for _, match := range s.registry.All() {
		if match.Age() < maxAge {
			continue
		}
		match.Expire()
		if _, err := s.Finalize(match.ID, ReasonTimeout); err != nil {
			log.Printf("Failed to finalize stale match %s: %v", match.ID, err)
		}
	}
}

// resolveRound finalizes the current round and either advances to the next
// one or finalizes the whole match. Serialized per match so a sweep and a
// player submission cannot both resolve the same round.
func (s *BattleService) resolveRound(match *MatchState) error {
	lock := s.opLock(match.ID)
	lock.Lock()
	defer lock.Unlock()

	result, err := match.FinalizeRound()
	if errors.Is(err, ErrInvalidState) {
		// Someone else already resolved this round; nothing left to do.
		return nil
	}
	if err != nil {
		return err
	}

	snap := match.Snapshot()
	s.notifier.BroadcastToMatch(match.ID, "round_resolved", map[string]interface{}{
		"match_id": match.ID,
		"round":    result,
		"wins_a":   snap.WinsA,
		"wins_b":   snap.WinsB,
	})

	cont, err := match.Advance()
	if errors.Is(err, ErrInvalidState) {
		// A surrender or disconnect finished the match under us; its own
		// finalize path takes over from here.
		return nil
	}
	if err != nil {
		return err
	}
	if cont {
		s.storeSnapshot(match)
		s.broadcastRoundStart(match)
		return nil
	}

	reason := ReasonNormal
	if match.WinnerID() == nil {
		reason = ReasonDraw
	}
	_, err = s.finalizeLocked(match.ID, reason)
	return err
}

// Finalize persists the match outcome exactly once. A repeat call, including
// a concurrent one, observes the already-persisted rows and replays them
// without recomputing or rewriting anything.
func (s *BattleService) Finalize(matchID string, reason OutcomeReason) (*FinalizeResult, error) {
	lock := s.opLock(matchID)
	lock.Lock()
	defer lock.Unlock()
	return s.finalizeLocked(matchID, reason)
}

func (s *BattleService) finalizeLocked(matchID string, reason OutcomeReason) (*FinalizeResult, error) {
	// Idempotency probe, inside the same critical section as the write.
	rows, err := s.outcomes.FinalizedRows(matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to check persisted outcome: %w", err)
	}
	if len(rows) > 0 {
		return resultFromRows(rows), nil
	}

	match, ok := s.registry.Get(matchID)
	if !ok {
		return nil, ErrMatchNotFound
	}

	snap := match.Snapshot()
	if snap.Status != MatchFinished {
		return nil, ErrInvalidState
	}
	winner := match.WinnerID()

	historyJSON, err := json.Marshal(snap.History)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize round history: %w", err)
	}

	outcomeA, outcomeB, err := s.computeOutcomes(match, winner)
	if err != nil {
		return nil, err
	}

	endedAt := time.Now()
	resultRows := []models.MatchResult{
		{
			MatchID: matchID, UserID: match.PlayerA, OpponentID: match.PlayerB,
			Language: match.Language, Result: outcomeA.Result,
			RatingDelta: outcomeA.RatingDelta, RatingAfter: outcomeA.RatingAfter,
			RoundHistory: string(historyJSON), Reason: string(reason), EndedAt: &endedAt,
		},
		{
			MatchID: matchID, UserID: match.PlayerB, OpponentID: match.PlayerA,
			Language: match.Language, Result: outcomeB.Result,
			RatingDelta: outcomeB.RatingDelta, RatingAfter: outcomeB.RatingAfter,
			RoundHistory: string(historyJSON), Reason: string(reason), EndedAt: &endedAt,
		},
	}
	if err := s.outcomes.SaveOutcome(resultRows); err != nil {
		return nil, fmt.Errorf("failed to persist match outcome: %w", err)
	}

	if !match.IsRoomMatch && outcomeA.Result != "draw" {
		if err := s.ratings.Put(match.PlayerA, s.season, outcomeA.RatingAfter); err != nil {
			log.Printf("Failed to store rating for player %d: %v", match.PlayerA, err)
		}
		if err := s.ratings.Put(match.PlayerB, s.season, outcomeB.RatingAfter); err != nil {
			log.Printf("Failed to store rating for player %d: %v", match.PlayerB, err)
		}
	}

	// Removal only after successful persistence.
	s.registry.Remove(matchID)
	s.dropSnapshot(matchID)

	final := &FinalizeResult{
		MatchID:  matchID,
		Reason:   reason,
		WinnerID: winner,
		Outcomes: orderedOutcomes(outcomeA, outcomeB),
	}

	s.notifier.BroadcastToMatch(matchID, "match_finished", final)

	winnerLog := "draw"
	if winner != nil {
		winnerLog = fmt.Sprintf("player %d", *winner)
	}
	log.Printf("Match %s finalized (%s): %s, %d %+d -> %d, %d %+d -> %d",
		matchID, reason, winnerLog,
		match.PlayerA, outcomeA.RatingDelta, outcomeA.RatingAfter,
		match.PlayerB, outcomeB.RatingDelta, outcomeB.RatingAfter)
	return final, nil
}

// computeOutcomes works out result flags and rating changes for both sides.
// Draws and room matches leave ratings untouched; both deltas come from
// pre-match ratings, never from each other.
func (s *BattleService) computeOutcomes(match *MatchState, winner *uint) (PlayerOutcome, PlayerOutcome, error) {
	ratingA, err := s.ratings.Get(match.PlayerA, s.season)
	if err != nil {
		return PlayerOutcome{}, PlayerOutcome{}, fmt.Errorf("failed to read rating for player %d: %w", match.PlayerA, err)
	}
	ratingB, err := s.ratings.Get(match.PlayerB, s.season)
	if err != nil {
		return PlayerOutcome{}, PlayerOutcome{}, fmt.Errorf("failed to read rating for player %d: %w", match.PlayerB, err)
	}

	outcomeA := PlayerOutcome{UserID: match.PlayerA, Result: "draw", RatingAfter: ratingA}
	outcomeB := PlayerOutcome{UserID: match.PlayerB, Result: "draw", RatingAfter: ratingB}
	if winner == nil {
		return outcomeA, outcomeB, nil
	}

	if *winner == match.PlayerA {
		outcomeA.Result, outcomeB.Result = "win", "loss"
	} else {
		outcomeA.Result, outcomeB.Result = "loss", "win"
	}
	if match.IsRoomMatch {
		return outcomeA, outcomeB, nil
	}

	scoreA := 0.0
	if *winner == match.PlayerA {
		scoreA = 1.0
	}
	outcomeA.RatingDelta = eloDelta(ratingA, ratingB, scoreA)
	outcomeB.RatingDelta = eloDelta(ratingB, ratingA, 1.0-scoreA)
	outcomeA.RatingAfter = applyDelta(ratingA, outcomeA.RatingDelta)
	outcomeB.RatingAfter = applyDelta(ratingB, outcomeB.RatingDelta)
	return outcomeA, outcomeB, nil
}

// SnapshotFor returns the live snapshot for a match, falling back to the
// Redis copy when the match is no longer resident.
func (s *BattleService) SnapshotFor(matchID string) (*MatchSnapshot, error) {
	if match, ok := s.registry.Get(matchID); ok {
		snap := match.Snapshot()
		return &snap, nil
	}
	if s.redis != nil {
		data, err := s.redis.Get(context.Background(), snapshotKey(matchID)).Result()
		if err == nil {
			var snap MatchSnapshot
			if err := json.Unmarshal([]byte(data), &snap); err == nil {
				return &snap, nil
			}
		} else if err != redis.Nil {
			log.Printf("Redis error reading snapshot for %s: %v", matchID, err)
		}
	}
	return nil, ErrMatchNotFound
}

// MatchForPlayer finds the live match a player belongs to.
func (s *BattleService) MatchForPlayer(userID uint) (*MatchState, bool) {
	return s.registry.FindByPlayer(userID)
}

func (s *BattleService) broadcastRoundStart(match *MatchState) {
	snap := match.Snapshot()
	if snap.CurrentQuestion == nil {
		return
	}
	s.notifier.BroadcastToMatch(match.ID, "round_start", map[string]interface{}{
		"match_id":           match.ID,
		"round":              snap.CurrentRound,
		"question":           snap.CurrentQuestion,
		"round_time_left_ms": snap.RoundTimeLeftMs,
		"wins_a":             snap.WinsA,
		"wins_b":             snap.WinsB,
	})
}

func (s *BattleService) storeSnapshot(match *MatchState) {
	if s.redis == nil {
		return
	}
	snap := match.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Failed to marshal snapshot for match %s: %v", match.ID, err)
		return
	}
	if err := s.redis.Set(context.Background(), snapshotKey(match.ID), data, snapshotTTL).Err(); err != nil {
		log.Printf("Failed to store snapshot for match %s: %v", match.ID, err)
	}
}

func (s *BattleService) dropSnapshot(matchID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(context.Background(), snapshotKey(matchID)).Err(); err != nil {
		log.Printf("Failed to drop snapshot for match %s: %v", matchID, err)
	}
}

func (s *BattleService) opLock(matchID string) *sync.Mutex {
	v, _ := s.matchOps.LoadOrStore(matchID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func snapshotKey(matchID string) string {
	return "battle:" + matchID
}

func resultFromRows(rows []models.MatchResult) *FinalizeResult {
	final := &FinalizeResult{
		MatchID: rows[0].MatchID,
		Reason:  OutcomeReason(rows[0].Reason),
	}
	for _, row := range rows {
		if row.Result == "win" {
			id := row.UserID
			final.WinnerID = &id
		}
		final.Outcomes = append(final.Outcomes, PlayerOutcome{
			UserID:      row.UserID,
			Result:      row.Result,
			RatingDelta: row.RatingDelta,
			RatingAfter: row.RatingAfter,
		})
	}
	return final
}

func orderedOutcomes(a, b PlayerOutcome) []PlayerOutcome {
	if a.UserID > b.UserID {
		return []PlayerOutcome{b, a}
	}
	return []PlayerOutcome{a, b}
}
