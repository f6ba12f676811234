package services

import (
	"sync"
	"testing"
	"time"
)

const (
	testPlayerA = uint(1)
	testPlayerB = uint(2)
	rightAnswer = "bonjour"
	wrongAnswer = "hola"
)

func newTestMatch(t *testing.T, clock *fakeClock) *MatchState {
	t.Helper()

	questions := make([]BattleQuestion, QuestionCountFor(3))
	for i := range questions {
		questions[i] = BattleQuestion{
			ID:             uint(i + 1),
			Text:           "translate: hello",
			ExpectedAnswer: rightAnswer,
			Format:         "translate",
		}
	}
	m := NewMatchState("match-1", testPlayerA, testPlayerB, "french", 3, questions)
	m.now = clock.Now
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return m
}

// playRound acts out one round for the given answer kinds ("correct",
// "incorrect" or "timeout") and resolves it. Player A always acts before
// player B, one second apart.
func playRound(t *testing.T, m *MatchState, clock *fakeClock, kindA, kindB string) *RoundResult {
	t.Helper()

	submit := func(player uint, kind string) {
		switch kind {
		case "correct":
			if _, err := m.RecordAnswer(player, rightAnswer); err != nil {
				t.Fatalf("record correct answer for %d: %v", player, err)
			}
		case "incorrect":
			if _, err := m.RecordAnswer(player, wrongAnswer); err != nil {
				t.Fatalf("record incorrect answer for %d: %v", player, err)
			}
		case "timeout":
			// no submission
		default:
			t.Fatalf("unknown answer kind %q", kind)
		}
	}

	clock.Advance(1 * time.Second)
	submit(testPlayerA, kindA)
	clock.Advance(1 * time.Second)
	submit(testPlayerB, kindB)

	if kindA == "timeout" || kindB == "timeout" {
		clock.Advance(RoundTimeLimit)
	}

	result, err := m.FinalizeRound()
	if err != nil {
		t.Fatalf("finalize round: %v", err)
	}
	return result
}

func TestRoundResolutionTable(t *testing.T) {
	winA, winB := testPlayerA, testPlayerB
	tests := []struct {
		kindA, kindB string
		wantWinner   *uint
		wantNoCount  string
	}{
		{"correct", "correct", &winA, ""}, // A answered first, so faster
		{"correct", "incorrect", &winA, ""},
		{"correct", "timeout", &winA, ""},
		{"incorrect", "correct", &winB, ""},
		{"incorrect", "incorrect", nil, NoCountBothIncorrect},
		{"incorrect", "timeout", nil, NoCountBothIncorrect},
		{"timeout", "correct", &winB, ""},
		{"timeout", "incorrect", nil, NoCountBothIncorrect},
		{"timeout", "timeout", nil, NoCountBothTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.kindA+"_vs_"+tt.kindB, func(t *testing.T) {
			clock := newFakeClock()
			m := newTestMatch(t, clock)

			result := playRound(t, m, clock, tt.kindA, tt.kindB)

			if tt.wantWinner == nil {
				if result.WinnerID != nil {
					t.Errorf("got winner %d, want no-count", *result.WinnerID)
				}
				if result.NoCountReason != tt.wantNoCount {
					t.Errorf("no-count reason = %q, want %q", result.NoCountReason, tt.wantNoCount)
				}
			} else {
				if result.WinnerID == nil {
					t.Fatalf("got no-count %q, want winner %d", result.NoCountReason, *tt.wantWinner)
				}
				if *result.WinnerID != *tt.wantWinner {
					t.Errorf("winner = %d, want %d", *result.WinnerID, *tt.wantWinner)
				}
			}
		})
	}
}

func TestTieBreakFasterCorrectAnswerWins(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	clock.Advance(2 * time.Second)
	m.RecordAnswer(testPlayerB, rightAnswer)
	clock.Advance(5 * time.Second)
	m.RecordAnswer(testPlayerA, rightAnswer)

	result, err := m.FinalizeRound()
	if err != nil {
		t.Fatalf("finalize round: %v", err)
	}
	if result.WinnerID == nil || *result.WinnerID != testPlayerB {
		t.Errorf("faster correct answer should win, got %+v", result)
	}
}

func TestTieBreakExactTieIsNoCount(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	// Identical millisecond timestamps: reachable with coarse clocks, and
	// part of the contract either way.
	clock.Advance(3 * time.Second)
	m.RecordAnswer(testPlayerA, rightAnswer)
	m.RecordAnswer(testPlayerB, rightAnswer)

	result, err := m.FinalizeRound()
	if err != nil {
		t.Fatalf("finalize round: %v", err)
	}
	if result.WinnerID != nil {
		t.Errorf("exact tie should be a no-count, got winner %d", *result.WinnerID)
	}
	if result.NoCountReason != NoCountSameTime {
		t.Errorf("no-count reason = %q, want %q", result.NoCountReason, NoCountSameTime)
	}
	if m.WinsA != 0 || m.WinsB != 0 {
		t.Errorf("no-count round must not move win counters: %d/%d", m.WinsA, m.WinsB)
	}
}

func TestMatchDecidedByWinsRequired(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	for i := 0; i < 3; i++ {
		playRound(t, m, clock, "correct", "incorrect")
		cont, err := m.Advance()
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if i < 2 && !cont {
			t.Fatalf("match decided after %d wins, want 3", i+1)
		}
		if i == 2 && cont {
			t.Fatal("match should be decided at 3 wins")
		}
	}

	if m.Status != MatchFinished {
		t.Errorf("status = %s, want finished", m.Status)
	}
	if w := m.WinnerID(); w == nil || *w != testPlayerA {
		t.Errorf("winner = %v, want player %d", w, testPlayerA)
	}
}

func TestMatchDrawOnExhaustedRounds(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	for i := 0; i < m.MaxRounds; i++ {
		playRound(t, m, clock, "incorrect", "incorrect")
		cont, err := m.Advance()
		if err != nil {
			t.Fatalf("advance round %d: %v", i, err)
		}
		if i < m.MaxRounds-1 && !cont {
			t.Fatalf("match ended early at round %d", i+1)
		}
		if i == m.MaxRounds-1 && cont {
			t.Fatal("match should end when the round budget is exhausted")
		}
	}

	if w := m.WinnerID(); w != nil {
		t.Errorf("exhausted equal match should be a draw, got winner %d", *w)
	}
	if len(m.History) != m.MaxRounds {
		t.Errorf("history has %d rounds, want %d", len(m.History), m.MaxRounds)
	}
}

func TestLateSubmissionSilentlyDropped(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	clock.Advance(RoundTimeLimit + time.Second)
	bothIn, err := m.RecordAnswer(testPlayerA, rightAnswer)
	if err != nil {
		t.Fatalf("late record should be a silent no-op, got %v", err)
	}
	if bothIn {
		t.Error("late record must not signal both-in")
	}

	result, err := m.FinalizeRound()
	if err != nil {
		t.Fatalf("finalize round: %v", err)
	}
	if result.NoCountReason != NoCountBothTimeout {
		t.Errorf("round with only a late answer should be %s, got %q", NoCountBothTimeout, result.NoCountReason)
	}
	if result.AnswerA.RawAnswer != nil {
		t.Error("late answer must be recorded as a timeout (nil raw answer)")
	}
}

func TestDuplicateAnswerIgnored(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	clock.Advance(time.Second)
	m.RecordAnswer(testPlayerA, wrongAnswer)
	clock.Advance(time.Second)
	bothIn, err := m.RecordAnswer(testPlayerA, rightAnswer)
	if err != nil {
		t.Fatalf("duplicate record: %v", err)
	}
	if bothIn {
		t.Error("duplicate answer must not signal both-in")
	}

	bothIn, _ = m.RecordAnswer(testPlayerB, rightAnswer)
	if !bothIn {
		t.Fatal("second player's answer should complete the round")
	}
	result, _ := m.FinalizeRound()
	if result.AnswerA.IsCorrect {
		t.Error("first recorded answer must stand; the duplicate must not overwrite it")
	}
}

func TestRecordAnswerWrongState(t *testing.T) {
	questions := make([]BattleQuestion, QuestionCountFor(3))
	for i := range questions {
		questions[i] = BattleQuestion{ID: uint(i + 1), ExpectedAnswer: rightAnswer}
	}
	m := NewMatchState("match-2", testPlayerA, testPlayerB, "french", 3, questions)

	if _, err := m.RecordAnswer(testPlayerA, rightAnswer); err != ErrInvalidState {
		t.Errorf("recording before start: err = %v, want ErrInvalidState", err)
	}
	if _, err := m.RecordAnswer(99, rightAnswer); err != ErrInvalidState {
		t.Errorf("recording for a stranger: err = %v, want ErrInvalidState", err)
	}
}

func TestFinalizeRoundRejectsPrematureCall(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	clock.Advance(time.Second)
	m.RecordAnswer(testPlayerA, rightAnswer)

	if _, err := m.FinalizeRound(); err != ErrInvalidState {
		t.Errorf("finalize with one answer and time left: err = %v, want ErrInvalidState", err)
	}
}

func TestForceFinishBackfillsHistory(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	playRound(t, m, clock, "correct", "incorrect") // WinsA = 1
	if _, err := m.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if err := m.ForceFinish(testPlayerA); err != nil {
		t.Fatalf("force finish: %v", err)
	}

	if m.Status != MatchFinished {
		t.Fatalf("status = %s, want finished", m.Status)
	}
	if w := m.WinnerID(); w == nil || *w != testPlayerB {
		t.Fatalf("surrender by A should hand the win to B, got %v", w)
	}
	if m.WinsB != 3 {
		t.Errorf("WinsB = %d, want 3", m.WinsB)
	}

	// Round 1 was really played; the forced rounds are placeholders.
	if m.History[0].NoCountReason == NoCountNotPlayed {
		t.Error("played round must keep its real result")
	}
	for _, round := range m.History[1:] {
		if round.NoCountReason != NoCountNotPlayed {
			t.Errorf("round %d should be a not_played placeholder, got %q", round.RoundNumber, round.NoCountReason)
		}
		if round.WinnerID == nil || *round.WinnerID != testPlayerB {
			t.Errorf("round %d placeholder should credit the opponent", round.RoundNumber)
		}
		if round.AnswerA != nil || round.AnswerB != nil {
			t.Errorf("round %d placeholder must not carry answers", round.RoundNumber)
		}
	}
}

func TestForceFinishRejectsFinishedMatch(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	if err := m.ForceFinish(testPlayerA); err != nil {
		t.Fatalf("first force finish: %v", err)
	}
	if err := m.ForceFinish(testPlayerB); err != ErrInvalidState {
		t.Errorf("second force finish: err = %v, want ErrInvalidState", err)
	}
}

func TestUnrelatedMatchesDoNotSerialize(t *testing.T) {
	clockA, clockB := newFakeClock(), newFakeClock()
	m1 := newTestMatch(t, clockA)
	m2 := newTestMatch(t, clockB)

	var wg sync.WaitGroup
	hammer := func(m *MatchState, clock *fakeClock) {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.RecordAnswer(testPlayerA, rightAnswer)
			m.RecordAnswer(testPlayerB, wrongAnswer)
			if _, err := m.FinalizeRound(); err == nil {
				m.Advance()
			}
			m.Snapshot()
		}
	}

	wg.Add(2)
	go hammer(m1, clockA)
	go hammer(m2, clockB)
	wg.Wait()
}

func TestSnapshotHidesExpectedAnswer(t *testing.T) {
	clock := newFakeClock()
	m := newTestMatch(t, clock)

	snap := m.Snapshot()
	if snap.CurrentQuestion == nil {
		t.Fatal("snapshot of a running match should carry the current question")
	}
	// The struct keeps the field for server-side grading; the json tag hides
	// it from clients.
	if snap.Status != MatchInProgress || snap.WinsRequired != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
