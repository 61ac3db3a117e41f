package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"quizlive-service/internal/domain"
)

// manualScheduler lets tests fire timers deterministically. Cancel marks a
// timer instead of removing it, so tests can also simulate the race where a
// canceled callback was already queued.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	fn       func()
	canceled bool
	fired    bool
}

func (m *manualScheduler) Schedule(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{fn: fn}
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.canceled = true
	}
}

// fireNext runs the oldest pending timer that has not been canceled.
func (m *manualScheduler) fireNext(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	var next *manualTimer
	for _, timer := range m.timers {
		if !timer.fired && !timer.canceled {
			next = timer
			break
		}
	}
	m.mu.Unlock()
	if next == nil {
		t.Fatalf("no pending timer to fire")
	}
	next.fired = true
	next.fn()
}

// fireStale runs every unfired timer, canceled or not, simulating callbacks
// that were already queued when the cancel happened.
func (m *manualScheduler) fireStale() {
	m.mu.Lock()
	pending := make([]*manualTimer, 0, len(m.timers))
	for _, timer := range m.timers {
		if !timer.fired {
			timer.fired = true
			pending = append(pending, timer)
		}
	}
	m.mu.Unlock()
	for _, timer := range pending {
		timer.fn()
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []domain.Question{
			{
				Text:          "What is the capital of France?",
				Options:       []string{"London", "Paris", "Berlin", "Madrid"},
				CorrectIndex:  1,
				PrepSeconds:   5,
				AnswerSeconds: 15,
			},
			{
				Text:          "What is the capital of Spain?",
				Options:       []string{"Lisbon", "Seville", "Barcelona", "Madrid"},
				CorrectIndex:  3,
				PrepSeconds:   5,
				AnswerSeconds: 10,
			},
		},
	}
}

func newTestSession(t *testing.T, cfg Config) (*Session, *Registry, *manualScheduler, *fakeClock) {
	t.Helper()
	sched := &manualScheduler{}
	clock := newFakeClock()
	registry := NewRegistryWithClock(cfg, sched, clock.Now)
	session, err := registry.Create(testQuiz(), "host")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session, registry, sched, clock
}

// startCollecting drives a fresh session with the given players into the
// first question's answer window.
func startCollecting(t *testing.T, s *Session, sched *manualScheduler, players ...string) {
	t.Helper()
	for _, name := range players {
		if _, err := s.Join("conn-"+name, name); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}
	if err := s.Start("host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	sched.fireNext(t) // countdown -> QUESTION_PREP
	sched.fireNext(t) // prep -> COLLECTING
	if got := s.Phase(); got != PhaseCollecting {
		t.Fatalf("expected COLLECTING, got %s", got)
	}
}

func TestStartRequiresPlayers(t *testing.T) {
	s, _, _, _ := newTestSession(t, Config{})

	if err := s.Start("host"); !errors.Is(err, domain.ErrNoPlayers) {
		t.Fatalf("expected ErrNoPlayers, got %v", err)
	}
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Start("host"); err != nil {
		t.Fatalf("start with a player: %v", err)
	}
	if got := s.Phase(); got != PhaseCountdown {
		t.Fatalf("expected COUNTDOWN, got %s", got)
	}
}

func TestStartRejectsNonHost(t *testing.T) {
	s, _, _, _ := newTestSession(t, Config{})
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Start("conn-a"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestPhaseProgressionThroughOneQuestion(t *testing.T) {
	s, _, sched, clock := newTestSession(t, Config{})
	startCollecting(t, s, sched, "Alice", "Bob")

	clock.Advance(3 * time.Second)
	a, err := s.SubmitAnswer("conn-Alice", 1)
	if err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	if !a.Correct || a.Points != 800 {
		t.Fatalf("expected correct 800 points, got %+v", a)
	}

	// Bob is still outstanding, so we stay in COLLECTING.
	if got := s.Phase(); got != PhaseCollecting {
		t.Fatalf("expected COLLECTING, got %s", got)
	}

	clock.Advance(4500 * time.Millisecond)
	b, err := s.SubmitAnswer("conn-Bob", 1)
	if err != nil {
		t.Fatalf("bob answer: %v", err)
	}
	if b.Points != 500 {
		t.Fatalf("expected 500 points at half window, got %d", b.Points)
	}

	// Last outstanding answer triggers REVEAL without the timer.
	if got := s.Phase(); got != PhaseReveal {
		t.Fatalf("expected REVEAL after all answered, got %s", got)
	}

	if err := s.Next("host"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := s.Phase(); got != PhaseLeaderboard {
		t.Fatalf("expected LEADERBOARD, got %s", got)
	}

	if err := s.Next("host"); err != nil {
		t.Fatalf("next question: %v", err)
	}
	if got := s.Phase(); got != PhaseQuestionPrep {
		t.Fatalf("expected QUESTION_PREP for second question, got %s", got)
	}
}

func TestAnswerIdempotentPerQuestion(t *testing.T) {
	s, _, sched, clock := newTestSession(t, Config{})
	startCollecting(t, s, sched, "Alice", "Bob")

	clock.Advance(time.Second)
	first, err := s.SubmitAnswer("conn-Alice", 1)
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := s.SubmitAnswer("conn-Alice", 2); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	// Second submission must not change the stored answer or score.
	clock.Advance(10 * time.Second)
	sched.fireStale() // answer window expires -> REVEAL
	if err := s.Next("host"); err != nil {
		t.Fatalf("next: %v", err)
	}
	s.mu.Lock()
	standings := s.standingsLocked()
	s.mu.Unlock()
	if standings[0].Username != "Alice" || standings[0].Score != first.Points {
		t.Fatalf("expected Alice with %d points, got %+v", first.Points, standings[0])
	}
}

func TestLateAnswerRejected(t *testing.T) {
	s, _, sched, clock := newTestSession(t, Config{})
	startCollecting(t, s, sched, "Alice", "Bob")

	clock.Advance(16 * time.Second)
	sched.fireNext(t) // answer window expiry -> REVEAL

	if _, err := s.SubmitAnswer("conn-Alice", 1); !errors.Is(err, domain.ErrNotCollecting) {
		t.Fatalf("expected ErrNotCollecting, got %v", err)
	}
}

func TestStaleAnswerTimerIsNoop(t *testing.T) {
	s, _, sched, clock := newTestSession(t, Config{})
	startCollecting(t, s, sched, "Alice")

	clock.Advance(time.Second)
	if _, err := s.SubmitAnswer("conn-Alice", 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got := s.Phase(); got != PhaseReveal {
		t.Fatalf("expected early REVEAL, got %s", got)
	}

	// The canceled answer-window timer fires anyway; generation mismatch
	// must keep it from advancing the session a second time.
	sched.fireStale()
	if got := s.Phase(); got != PhaseReveal {
		t.Fatalf("stale timer advanced phase to %s", got)
	}
}

func TestSubmitRejectsInvalidInputs(t *testing.T) {
	s, _, sched, _ := newTestSession(t, Config{})
	startCollecting(t, s, sched, "Alice")

	if _, err := s.SubmitAnswer("conn-ghost", 1); !errors.Is(err, domain.ErrNotInGame) {
		t.Fatalf("expected ErrNotInGame, got %v", err)
	}
	if _, err := s.SubmitAnswer("conn-Alice", 7); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	if _, err := s.SubmitAnswer("conn-Alice", -1); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestJoinCutoffDefaultsToLobby(t *testing.T) {
	s, _, _, _ := newTestSession(t, Config{})
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Start("host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Join("conn-b", "Bob"); !errors.Is(err, domain.ErrRoomAlreadyStarted) {
		t.Fatalf("expected ErrRoomAlreadyStarted during countdown, got %v", err)
	}
}

func TestJoinThroughCountdownPolicy(t *testing.T) {
	s, _, sched, _ := newTestSession(t, Config{JoinThroughCountdown: true})
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Start("host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Join("conn-b", "Bob"); err != nil {
		t.Fatalf("expected countdown join to succeed, got %v", err)
	}
	sched.fireNext(t) // countdown -> QUESTION_PREP
	if _, err := s.Join("conn-c", "Cara"); !errors.Is(err, domain.ErrRoomAlreadyStarted) {
		t.Fatalf("expected ErrRoomAlreadyStarted after countdown, got %v", err)
	}
}

func TestUsernameUniquePerSessionAndFreedOnLeave(t *testing.T) {
	s, _, _, _ := newTestSession(t, Config{})
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.Join("conn-b", "Alice"); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	s.Leave("conn-a")
	if _, err := s.Join("conn-b", "Alice"); err != nil {
		t.Fatalf("expected username freed after leave, got %v", err)
	}

	// Same username in a different session is fine.
	other, _, _, _ := newTestSession(t, Config{})
	if _, err := other.Join("conn-x", "Alice"); err != nil {
		t.Fatalf("join other session: %v", err)
	}
}

func TestHostCannotJoinAsPlayer(t *testing.T) {
	s, _, _, _ := newTestSession(t, Config{})
	if _, err := s.Join("host", "Hosty"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestKick(t *testing.T) {
	s, _, _, _ := newTestSession(t, Config{})
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := s.Kick("conn-a", "conn-a"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-host kick, got %v", err)
	}
	if err := s.Kick("host", "conn-ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if err := s.Kick("host", "conn-a"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if _, err := s.Join("conn-b", "Alice"); err != nil {
		t.Fatalf("expected username freed after kick, got %v", err)
	}
}

func TestKickLastUnansweredPlayerTriggersReveal(t *testing.T) {
	s, _, sched, clock := newTestSession(t, Config{})
	startCollecting(t, s, sched, "Alice", "Bob")

	clock.Advance(time.Second)
	if _, err := s.SubmitAnswer("conn-Alice", 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := s.Kick("host", "conn-Bob"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if got := s.Phase(); got != PhaseReveal {
		t.Fatalf("expected REVEAL once only answered players remain, got %s", got)
	}
}

func TestAbortFinishesWithoutArchive(t *testing.T) {
	sched := &manualScheduler{}
	clock := newFakeClock()
	registry := NewRegistryWithClock(Config{}, sched, clock.Now)
	archived := make(chan domain.SessionResult, 1)
	registry.SetResultSink(func(r domain.SessionResult) { archived <- r })

	s, err := registry.Create(testQuiz(), "host")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	startCollecting(t, s, sched, "Alice")

	if err := s.Abort("host"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if got := s.Phase(); got != PhaseFinished {
		t.Fatalf("expected FINISHED, got %s", got)
	}
	select {
	case r := <-archived:
		t.Fatalf("abort must not archive, got %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResetReturnsToEmptyLobby(t *testing.T) {
	s, _, sched, clock := newTestSession(t, Config{})
	startCollecting(t, s, sched, "Alice", "Bob")

	clock.Advance(time.Second)
	if _, err := s.SubmitAnswer("conn-Alice", 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := s.Reset("host"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := s.Phase(); got != PhaseLobby {
		t.Fatalf("expected LOBBY, got %s", got)
	}
	if _, err := s.Join("conn-c", "Alice"); err != nil {
		t.Fatalf("expected empty lobby after reset, got %v", err)
	}
}

func TestFinishedSessionArchivesResults(t *testing.T) {
	sched := &manualScheduler{}
	clock := newFakeClock()
	registry := NewRegistryWithClock(Config{}, sched, clock.Now)
	archived := make(chan domain.SessionResult, 1)
	registry.SetResultSink(func(r domain.SessionResult) { archived <- r })

	quiz := testQuiz()
	quiz.Questions = quiz.Questions[:1]
	s, err := registry.Create(quiz, "host")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	startCollecting(t, s, sched, "Alice", "Bob")

	clock.Advance(3 * time.Second)
	if _, err := s.SubmitAnswer("conn-Alice", 1); err != nil {
		t.Fatalf("alice: %v", err)
	}
	clock.Advance(4500 * time.Millisecond)
	if _, err := s.SubmitAnswer("conn-Bob", 1); err != nil {
		t.Fatalf("bob: %v", err)
	}
	if err := s.Next("host"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := s.Next("host"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got := s.Phase(); got != PhaseFinished {
		t.Fatalf("expected FINISHED, got %s", got)
	}

	select {
	case r := <-archived:
		if r.QuizID != "quiz-1" || r.SessionPin != s.Pin() {
			t.Fatalf("unexpected result identity: %+v", r)
		}
		if len(r.Players) != 2 || r.Players[0].Username != "Alice" || r.Players[0].FinalScore != 800 {
			t.Fatalf("expected Alice first with 800, got %+v", r.Players)
		}
		if r.Players[1].Username != "Bob" || r.Players[1].FinalScore != 500 || r.Players[1].Rank != 2 {
			t.Fatalf("expected Bob second with 500, got %+v", r.Players[1])
		}
	case <-time.After(time.Second):
		t.Fatalf("result never archived")
	}
}

func TestHostGraceTeardown(t *testing.T) {
	s, registry, sched, _ := newTestSession(t, Config{})
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	s.Disconnected("host")
	sched.fireNext(t) // grace expiry

	if got := s.Phase(); got != PhaseFinished {
		t.Fatalf("expected FINISHED after grace, got %s", got)
	}
	if _, err := registry.Find(s.Pin()); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected session evicted, got %v", err)
	}
}

func TestHostReconnectCancelsGrace(t *testing.T) {
	s, registry, sched, _ := newTestSession(t, Config{})
	if _, err := s.Join("conn-a", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	s.Disconnected("host")
	if err := s.ReclaimHost("wrong-token", "host2"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for bad token, got %v", err)
	}
	if err := s.ReclaimHost(s.HostToken(), "host2"); err != nil {
		t.Fatalf("reclaim: %v", err)
	}

	// A queued grace callback racing the reclaim must be a no-op.
	sched.fireStale()
	if got := s.Phase(); got == PhaseFinished {
		t.Fatalf("grace fired despite reconnect")
	}
	if _, err := registry.Find(s.Pin()); err != nil {
		t.Fatalf("session should survive: %v", err)
	}
	if !s.IsHost("host2") {
		t.Fatalf("expected host seat re-bound to new connection")
	}
}

func TestSubscribeAudiences(t *testing.T) {
	s, _, sched, clock := newTestSession(t, Config{})

	hostCh, hostCancel := s.Subscribe("host")
	defer hostCancel()
	playerCh, playerCancel := s.Subscribe("conn-Alice")
	defer playerCancel()

	startCollecting(t, s, sched, "Alice", "Bob")
	clock.Advance(time.Second)
	if _, err := s.SubmitAnswer("conn-Alice", 1); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if !sawEvent(drain(hostCh), EventAnswerCount) {
		t.Fatalf("host should receive answerCount")
	}
	playerEvents := drain(playerCh)
	if sawEvent(playerEvents, EventAnswerCount) {
		t.Fatalf("answerCount must be host-only")
	}
	if !sawEvent(playerEvents, EventCollecting) {
		t.Fatalf("player should receive phase broadcasts")
	}
}

func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func sawEvent(events []Event, typ string) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}
