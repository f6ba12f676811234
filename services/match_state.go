package services

import (
	"strings"
	"sync"
	"time"
)

const (
	// RoundTimeLimit bounds how long a round stays open for answers.
	RoundTimeLimit = 30 * time.Second

	// questionOffset pads the question list beyond winsRequired so a match
	// can never run out of prepared questions before a decision is
	// structurally possible.
	questionOffset = 5

	// DefaultWinsRequired is the ranked best-of target.
	DefaultWinsRequired = 3
)

type MatchStatus string

const (
	MatchWaiting    MatchStatus = "waiting_for_players"
	MatchInProgress MatchStatus = "in_progress"
	MatchFinished   MatchStatus = "finished"
)

// OutcomeReason tags how a match ended. It is a closed set; finalize and
// history back-fill branch on it.
type OutcomeReason string

const (
	ReasonNormal     OutcomeReason = "normal"
	ReasonSurrender  OutcomeReason = "surrender"
	ReasonDisconnect OutcomeReason = "disconnect"
	ReasonTimeout    OutcomeReason = "timeout"
	ReasonDraw       OutcomeReason = "draw"
)

// No-count reasons for rounds that advance neither win tally.
const (
	NoCountBothTimeout   = "both_timeout"
	NoCountBothIncorrect = "both_incorrect"
	NoCountSameTime      = "same_time"
	NoCountNotPlayed     = "not_played" // back-filled after surrender/disconnect
)

// BattleQuestion is the in-memory projection of a question attached to a
// match. ExpectedAnswer never leaves the server.
type BattleQuestion struct {
	ID             uint   `json:"id"`
	Text           string `json:"text"`
	ExpectedAnswer string `json:"-"`
	Format         string `json:"format"`
}

// PlayerAnswer is one player's submission for one round. A nil RawAnswer
// denotes a timeout. Immutable once recorded.
type PlayerAnswer struct {
	UserID         uint      `json:"user_id"`
	RawAnswer      *string   `json:"raw_answer"`
	SubmittedAt    time.Time `json:"submitted_at"`
	IsCorrect      bool      `json:"is_correct"`
	ResponseTimeMs int64     `json:"response_time_ms"`
}

// RoundResult is one resolved round, appended to match history exactly once.
type RoundResult struct {
	RoundNumber   int           `json:"round_number"`
	QuestionID    uint          `json:"question_id"`
	AnswerA       *PlayerAnswer `json:"answer_a"`
	AnswerB       *PlayerAnswer `json:"answer_b"`
	WinnerID      *uint         `json:"winner_id"`
	NoCountReason string        `json:"no_count_reason,omitempty"`
}

// MatchState holds everything about one live battle. All mutation goes
// through methods that take the per-match mutex, so two matches never
// serialize on each other.
type MatchState struct {
	mu sync.Mutex

	ID           string
	PlayerA      uint
	PlayerB      uint
	Language     string
	IsRoomMatch  bool
	RoomID       *uint
	WinsRequired int
	MaxRounds    int
	Questions    []BattleQuestion

	Status         MatchStatus
	CreatedAt      time.Time
	CurrentRound   int
	RoundStartedAt time.Time
	WinsA          int
	WinsB          int

	pendingA *PlayerAnswer
	pendingB *PlayerAnswer
	History  []RoundResult

	now func() time.Time
}

// NewMatchState builds a match in WAITING_FOR_PLAYERS. The question list
// must already be shuffled and sized winsRequired+questionOffset.
func NewMatchState(id string, playerA, playerB uint, language string, winsRequired int, questions []BattleQuestion) *MatchState {
	return &MatchState{
		ID:           id,
		PlayerA:      playerA,
		PlayerB:      playerB,
		Language:     language,
		WinsRequired: winsRequired,
		MaxRounds:    len(questions),
		Questions:    questions,
		Status:       MatchWaiting,
		CreatedAt:    time.Now(),
		now:          time.Now,
	}
}

// QuestionCountFor returns how many questions a match needs for the given
// best-of target.
func QuestionCountFor(winsRequired int) int {
	return winsRequired + questionOffset
}

// Start moves the match into IN_PROGRESS at round 0.
func (m *MatchState) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != MatchWaiting {
		return ErrInvalidState
	}
	m.Status = MatchInProgress
	m.CurrentRound = 0
	m.RoundStartedAt = m.now()
	return nil
}

// RecordAnswer stores one player's answer for the current round. It returns
// true once both players have an answer recorded, signalling the caller to
// finalize the round. Late submissions (past the round time limit) and
// duplicates are silently dropped; the round will resolve via timeout.
func (m *MatchState) RecordAnswer(userID uint, rawAnswer string) (bothIn bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != MatchInProgress {
		return false, ErrInvalidState
	}
	if userID != m.PlayerA && userID != m.PlayerB {
		return false, ErrInvalidState
	}

	elapsed := m.now().Sub(m.RoundStartedAt)
	if elapsed > RoundTimeLimit {
		// Too late; the timeout sweep owns this round now.
		return false, nil
	}

	slot := &m.pendingA
	if userID == m.PlayerB {
		slot = &m.pendingB
	}
	if *slot != nil {
		return false, nil
	}

	question := m.Questions[m.CurrentRound]
	answer := rawAnswer
	*slot = &PlayerAnswer{
		UserID:         userID,
		RawAnswer:      &answer,
		SubmittedAt:    m.now(),
		IsCorrect:      answersMatch(rawAnswer, question.ExpectedAnswer),
		ResponseTimeMs: elapsed.Milliseconds(),
	}

	return m.pendingA != nil && m.pendingB != nil, nil
}

// FinalizeRound resolves the current round, synthesizing timeout answers for
// anyone who never submitted, and appends the result to history. The
// resolution table, in priority order: both timed out, both incorrect,
// both correct (faster wins, exact tie is a no-count), one correct.
func (m *MatchState) FinalizeRound() (*RoundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != MatchInProgress {
		return nil, ErrInvalidState
	}

	// A round is resolvable only once both answers are in or its window has
	// expired. Anything else is a premature call, e.g. the loser of a
	// sweep-vs-submission race.
	bothIn := m.pendingA != nil && m.pendingB != nil
	if !bothIn && m.now().Sub(m.RoundStartedAt) <= RoundTimeLimit {
		return nil, ErrInvalidState
	}

	elapsedMs := m.now().Sub(m.RoundStartedAt).Milliseconds()
	a := m.pendingA
	if a == nil {
		a = timeoutAnswer(m.PlayerA, elapsedMs, m.now())
	}
	b := m.pendingB
	if b == nil {
		b = timeoutAnswer(m.PlayerB, elapsedMs, m.now())
	}

	result := RoundResult{
		RoundNumber: m.CurrentRound + 1,
		QuestionID:  m.Questions[m.CurrentRound].ID,
		AnswerA:     a,
		AnswerB:     b,
	}

	switch {
	case a.RawAnswer == nil && b.RawAnswer == nil:
		result.NoCountReason = NoCountBothTimeout
	case !a.IsCorrect && !b.IsCorrect:
		result.NoCountReason = NoCountBothIncorrect
	case a.IsCorrect && b.IsCorrect:
		switch {
		case a.ResponseTimeMs < b.ResponseTimeMs:
			result.WinnerID = &m.PlayerA
			m.WinsA++
		case b.ResponseTimeMs < a.ResponseTimeMs:
			result.WinnerID = &m.PlayerB
			m.WinsB++
		default:
			result.NoCountReason = NoCountSameTime
		}
	case a.IsCorrect:
		result.WinnerID = &m.PlayerA
		m.WinsA++
	default:
		result.WinnerID = &m.PlayerB
		m.WinsB++
	}

	m.History = append(m.History, result)
	m.pendingA = nil
	m.pendingB = nil
	return &result, nil
}

// Advance moves to the next round, or marks the match FINISHED when it is
// decided. Returns true while the match should continue.
func (m *MatchState) Advance() (cont bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != MatchInProgress {
		return false, ErrInvalidState
	}

	if m.decidedLocked() {
		m.Status = MatchFinished
		return false, nil
	}

	m.CurrentRound++
	m.RoundStartedAt = m.now()
	return true, nil
}

// ForceFinish ends the match in favor of the opponent of triggeredBy, used
// for surrender and disconnect. Rounds that were never played are
// back-filled into history as not_played placeholders so replay views stay
// structurally complete.
func (m *MatchState) ForceFinish(triggeredBy uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status == MatchFinished {
		return ErrInvalidState
	}

	winner := m.PlayerA
	if triggeredBy == m.PlayerA {
		winner = m.PlayerB
	} else if triggeredBy != m.PlayerB {
		return ErrInvalidState
	}

	for !m.decidedLocked() {
		round := len(m.History)
		if round >= m.MaxRounds {
			break
		}
		m.History = append(m.History, RoundResult{
			RoundNumber:   round + 1,
			QuestionID:    m.Questions[round].ID,
			WinnerID:      &winner,
			NoCountReason: NoCountNotPlayed,
		})
		if winner == m.PlayerA {
			m.WinsA++
		} else {
			m.WinsB++
		}
	}

	m.pendingA = nil
	m.pendingB = nil
	m.Status = MatchFinished
	return nil
}

// Expire force-finishes a stalled match in place, leaving the win counters
// as they stand. The usual winner resolution applies: higher count wins,
// equal counts draw.
func (m *MatchState) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status == MatchFinished {
		return
	}
	m.pendingA = nil
	m.pendingB = nil
	m.Status = MatchFinished
}

// Age reports how long ago the match was created.
func (m *MatchState) Age() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.CreatedAt)
}

// IsRoundTimedOut reports whether the current round's window has expired.
// Any poller may observe this, not only the player who should have answered.
func (m *MatchState) IsRoundTimedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Status == MatchInProgress && m.now().Sub(m.RoundStartedAt) > RoundTimeLimit
}

// IsMatchDecided reports whether a win target or the round budget has been
// reached.
func (m *MatchState) IsMatchDecided() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decidedLocked()
}

// WinnerID returns the winning player, or nil for a draw or an unfinished
// match.
func (m *MatchState) WinnerID() *uint {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != MatchFinished {
		return nil
	}
	switch {
	case m.WinsA > m.WinsB:
		return &m.PlayerA
	case m.WinsB > m.WinsA:
		return &m.PlayerB
	default:
		return nil
	}
}

// Snapshot returns a copy of the client-visible match state for resync.
func (m *MatchState) Snapshot() MatchSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MatchSnapshot{
		MatchID:      m.ID,
		PlayerA:      m.PlayerA,
		PlayerB:      m.PlayerB,
		Language:     m.Language,
		IsRoomMatch:  m.IsRoomMatch,
		Status:       m.Status,
		CurrentRound: m.CurrentRound,
		WinsA:        m.WinsA,
		WinsB:        m.WinsB,
		WinsRequired: m.WinsRequired,
		MaxRounds:    m.MaxRounds,
		History:      append([]RoundResult(nil), m.History...),
	}
	if m.Status == MatchInProgress && m.CurrentRound < len(m.Questions) {
		q := m.Questions[m.CurrentRound]
		snap.CurrentQuestion = &q
		remaining := RoundTimeLimit - m.now().Sub(m.RoundStartedAt)
		if remaining < 0 {
			remaining = 0
		}
		snap.RoundTimeLeftMs = remaining.Milliseconds()
	}
	return snap
}

// MatchSnapshot is the JSON shape stored in Redis and sent to clients when
// they resync.
type MatchSnapshot struct {
	MatchID         string          `json:"match_id"`
	PlayerA         uint            `json:"player_a"`
	PlayerB         uint            `json:"player_b"`
	Language        string          `json:"language"`
	IsRoomMatch     bool            `json:"is_room_match"`
	Status          MatchStatus     `json:"status"`
	CurrentRound    int             `json:"current_round"`
	CurrentQuestion *BattleQuestion `json:"current_question,omitempty"`
	RoundTimeLeftMs int64           `json:"round_time_left_ms,omitempty"`
	WinsA           int             `json:"wins_a"`
	WinsB           int             `json:"wins_b"`
	WinsRequired    int             `json:"wins_required"`
	MaxRounds       int             `json:"max_rounds"`
	History         []RoundResult   `json:"history"`
}

func (m *MatchState) decidedLocked() bool {
	if m.WinsA >= m.WinsRequired || m.WinsB >= m.WinsRequired {
		return true
	}
	return len(m.History) >= m.MaxRounds
}

func timeoutAnswer(userID uint, elapsedMs int64, at time.Time) *PlayerAnswer {
	return &PlayerAnswer{
		UserID:         userID,
		RawAnswer:      nil,
		SubmittedAt:    at,
		IsCorrect:      false,
		ResponseTimeMs: elapsedMs,
	}
}

// answersMatch compares a submission with the expected answer using
// case-insensitive trimmed equality.
func answersMatch(submitted, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(expected))
}

// MatchRegistry holds all live matches keyed by match id. The registry lock
// only guards the map; per-match state carries its own mutex.
type MatchRegistry struct {
	mu      sync.RWMutex
	matches map[string]*MatchState
}

func NewMatchRegistry() *MatchRegistry {
	return &MatchRegistry{matches: make(map[string]*MatchState)}
}

func (r *MatchRegistry) Get(matchID string) (*MatchState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[matchID]
	return m, ok
}

// Put inserts a match unless one already exists for the id, returning the
// resident state and whether the insert happened.
func (r *MatchRegistry) Put(m *MatchState) (*MatchState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.matches[m.ID]; ok {
		return existing, false
	}
	r.matches[m.ID] = m
	return m, true
}

func (r *MatchRegistry) Remove(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, matchID)
}

// All returns a snapshot of the live matches, for timeout sweeps.
func (r *MatchRegistry) All() []*MatchState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MatchState, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

// FindByPlayer returns the live match a player is part of, if any.
func (r *MatchRegistry) FindByPlayer(userID uint) (*MatchState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.matches {
		if m.PlayerA == userID || m.PlayerB == userID {
			return m, true
		}
	}
	return nil, false
}
