package game

import (
	"sort"
	"sync"
	"time"

	"quizlive-service/internal/domain"
)

// Phase is a session's state-machine state.
type Phase string

const (
	PhaseLobby        Phase = "LOBBY"
	PhaseCountdown    Phase = "COUNTDOWN"
	PhaseQuestionPrep Phase = "QUESTION_PREP"
	PhaseCollecting   Phase = "COLLECTING"
	PhaseReveal       Phase = "REVEAL"
	PhaseLeaderboard  Phase = "LEADERBOARD"
	PhaseFinished     Phase = "FINISHED"
)

// Config controls session pacing and join policy.
type Config struct {
	// Countdown is the fixed delay between host:start and the first question.
	Countdown time.Duration
	// HostGrace is how long a session survives a host disconnect.
	HostGrace time.Duration
	// JoinThroughCountdown extends the joinable window into COUNTDOWN.
	JoinThroughCountdown bool
}

func (c Config) withDefaults() Config {
	if c.Countdown <= 0 {
		c.Countdown = 3 * time.Second
	}
	if c.HostGrace <= 0 {
		c.HostGrace = 30 * time.Second
	}
	return c
}

// PlayerView is returned to a player on a successful join.
type PlayerView struct {
	Pin           string `json:"pin"`
	Username      string `json:"username"`
	Title         string `json:"title"`
	QuestionCount int    `json:"questionCount"`
	PlayerCount   int    `json:"playerCount"`
}

type player struct {
	connID    string
	username  string
	score     int
	joinOrder int
	answers   map[int]domain.Answer
}

// Session is one live run of a quiz from lobby to finish. All state is
// guarded by a single mutex; commands are synchronous and non-blocking.
// Timer callbacks re-check the phase generation under the lock, so a stale
// fire racing a cancel is a no-op.
type Session struct {
	pin       string
	quiz      domain.Quiz
	hostToken string
	cfg       Config
	sched     Scheduler
	now       func() time.Time

	onFinish func(domain.SessionResult)
	onClose  func()

	mu          sync.Mutex
	hostConn    string
	hostGone    bool
	phase       Phase
	gen         uint64
	current     int
	roundStart  time.Time
	players     map[string]*player
	joinSeq     int
	cancelTimer func()
	cancelGrace func()
	subscribers map[chan Event]string
}

func newSession(pin, hostConn, hostToken string, quiz domain.Quiz, cfg Config, sched Scheduler, now func() time.Time) *Session {
	return &Session{
		pin:         pin,
		quiz:        quiz,
		hostToken:   hostToken,
		cfg:         cfg,
		sched:       sched,
		now:         now,
		hostConn:    hostConn,
		phase:       PhaseLobby,
		current:     -1,
		players:     make(map[string]*player),
		subscribers: make(map[chan Event]string),
	}
}

// Pin returns the session's join code.
func (s *Session) Pin() string { return s.pin }

// QuizID returns the ID of the quiz being played.
func (s *Session) QuizID() string { return s.quiz.ID }

// Title returns the quiz title.
func (s *Session) Title() string { return s.quiz.Title }

// HostToken is the durable credential for host reconnection.
func (s *Session) HostToken() string { return s.hostToken }

// Phase returns the current state-machine state.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsHost reports whether connID currently holds the host seat.
func (s *Session) IsHost(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return connID == s.hostConn
}

// Joinable reports whether a join would currently be accepted.
func (s *Session) Joinable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinableLocked()
}

func (s *Session) joinableLocked() bool {
	if s.phase == PhaseLobby {
		return true
	}
	return s.phase == PhaseCountdown && s.cfg.JoinThroughCountdown
}

// Subscribe registers a connection for session events. The caller must invoke
// the returned cancel function to avoid leaks. Events whose audience does not
// include connID are filtered out before delivery.
func (s *Session) Subscribe(connID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = connID
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		finished := s.phase == PhaseFinished && len(s.subscribers) == 0
		onClose := s.onClose
		s.mu.Unlock()
		if finished && onClose != nil {
			onClose()
		}
	}
	return ch, cancel
}

func (s *Session) emitLocked(ev Event) {
	for ch, connID := range s.subscribers {
		switch ev.Audience {
		case AudienceHost:
			if connID != s.hostConn {
				continue
			}
		case AudiencePlayer:
			if connID != ev.Target {
				continue
			}
		}
		select {
		case ch <- ev:
		default:
			// Slow consumer: drop its oldest event rather than block the session.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// toPhaseLocked enters a new phase. Canceling the outstanding timer and
// bumping the generation first is what makes a stale timer fire harmless.
func (s *Session) toPhaseLocked(p Phase) {
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	s.gen++
	s.phase = p
}

func (s *Session) scheduleLocked(d time.Duration, fn func()) {
	gen := s.gen
	s.cancelTimer = s.sched.Schedule(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		fn()
	})
}

// Join adds a player while the session is still joinable. The host connection
// can never join as a player.
func (s *Session) Join(connID, username string) (PlayerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID == s.hostConn {
		return PlayerView{}, domain.ErrNotAuthorized
	}
	if !s.joinableLocked() {
		return PlayerView{}, domain.ErrRoomAlreadyStarted
	}
	for _, p := range s.players {
		if p.username == username {
			return PlayerView{}, domain.ErrUsernameTaken
		}
	}

	s.joinSeq++
	s.players[connID] = &player{
		connID:    connID,
		username:  username,
		joinOrder: s.joinSeq,
		answers:   make(map[int]domain.Answer),
	}

	s.emitLocked(Event{Type: EventPlayerJoined, Audience: AudienceAll, Payload: PlayerJoinedPayload{
		PlayerID:    connID,
		Username:    username,
		PlayerCount: len(s.players),
	}})

	return PlayerView{
		Pin:           s.pin,
		Username:      username,
		Title:         s.quiz.Title,
		QuestionCount: len(s.quiz.Questions),
		PlayerCount:   len(s.players),
	}, nil
}

// Start moves the lobby into the pre-game countdown. Host only.
func (s *Session) Start(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID != s.hostConn {
		return domain.ErrNotAuthorized
	}
	if s.phase != PhaseLobby {
		return domain.ErrRoomAlreadyStarted
	}
	if len(s.players) == 0 {
		return domain.ErrNoPlayers
	}

	s.toPhaseLocked(PhaseCountdown)
	s.emitLocked(Event{Type: EventCountdown, Audience: AudienceAll, Payload: CountdownPayload{
		Seconds: int(s.cfg.Countdown / time.Second),
	}})
	s.scheduleLocked(s.cfg.Countdown, func() {
		s.current = 0
		s.enterPrepLocked()
	})
	return nil
}

func (s *Session) enterPrepLocked() {
	q := s.quiz.Questions[s.current]
	s.toPhaseLocked(PhaseQuestionPrep)
	s.emitLocked(Event{Type: EventQuestion, Audience: AudienceAll, Payload: QuestionPayload{
		Index:       s.current,
		Total:       len(s.quiz.Questions),
		Text:        q.Text,
		ImageRef:    q.ImageRef,
		PrepSeconds: q.PrepSeconds,
	}})
	s.scheduleLocked(time.Duration(q.PrepSeconds)*time.Second, s.enterCollectingLocked)
}

func (s *Session) enterCollectingLocked() {
	q := s.quiz.Questions[s.current]
	s.toPhaseLocked(PhaseCollecting)
	s.roundStart = s.now()
	s.emitLocked(Event{Type: EventCollecting, Audience: AudienceAll, Payload: CollectingPayload{
		Index:         s.current,
		Options:       q.Options,
		AnswerSeconds: q.AnswerSeconds,
	}})
	s.scheduleLocked(time.Duration(q.AnswerSeconds)*time.Second, s.enterRevealLocked)
}

// SubmitAnswer records a player's answer for the current question. A repeat
// submission leaves all state untouched. When the last outstanding player
// answers, the session moves to REVEAL without waiting for the timer.
func (s *Session) SubmitAnswer(connID string, option int) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return domain.Answer{}, domain.ErrNotInGame
	}
	if s.phase != PhaseCollecting {
		return domain.Answer{}, domain.ErrNotCollecting
	}
	q := s.quiz.Questions[s.current]
	if option < 0 || option >= len(q.Options) {
		return domain.Answer{}, domain.ErrInvalidOption
	}
	if _, dup := p.answers[s.current]; dup {
		return domain.Answer{}, domain.ErrAlreadyAnswered
	}

	elapsed := s.now().Sub(s.roundStart)
	window := time.Duration(q.AnswerSeconds) * time.Second
	correct := option == q.CorrectIndex
	answer := domain.Answer{
		Option:       option,
		Correct:      correct,
		Points:       Score(correct, elapsed, window),
		ResponseTime: elapsed,
	}
	p.answers[s.current] = answer
	p.score += answer.Points

	s.emitLocked(Event{Type: EventAnswerCount, Audience: AudienceHost, Payload: AnswerCountPayload{
		Answered: s.answeredLocked(),
		Players:  len(s.players),
	}})

	if s.allAnsweredLocked() {
		s.enterRevealLocked()
	}
	return answer, nil
}

func (s *Session) answeredLocked() int {
	n := 0
	for _, p := range s.players {
		if _, ok := p.answers[s.current]; ok {
			n++
		}
	}
	return n
}

func (s *Session) allAnsweredLocked() bool {
	return len(s.players) > 0 && s.answeredLocked() == len(s.players)
}

func (s *Session) enterRevealLocked() {
	q := s.quiz.Questions[s.current]
	s.toPhaseLocked(PhaseReveal)

	counts := make([]int, len(q.Options))
	for _, p := range s.players {
		if a, ok := p.answers[s.current]; ok {
			counts[a.Option]++
		}
	}
	s.emitLocked(Event{Type: EventReveal, Audience: AudienceAll, Payload: RevealPayload{
		Index:         s.current,
		CorrectOption: q.CorrectIndex,
		OptionCounts:  counts,
	}})

	ranks := s.rankByConnLocked()
	for _, p := range s.players {
		a := p.answers[s.current] // zero value means no answer: incorrect, 0 points
		s.emitLocked(Event{Type: EventPersonalResult, Audience: AudiencePlayer, Target: p.connID, Payload: PersonalResultPayload{
			Correct:    a.Correct,
			Points:     a.Points,
			TotalScore: p.score,
			Rank:       ranks[p.connID],
		}})
	}
}

// Next advances REVEAL to LEADERBOARD, then LEADERBOARD to the next question
// or to FINISHED when the quiz is exhausted. Host only.
func (s *Session) Next(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID != s.hostConn {
		return domain.ErrNotAuthorized
	}
	switch s.phase {
	case PhaseReveal:
		s.toPhaseLocked(PhaseLeaderboard)
		s.emitLocked(Event{Type: EventLeaderboard, Audience: AudienceAll, Payload: LeaderboardPayload{
			Entries: s.standingsLocked(),
		}})
		return nil
	case PhaseLeaderboard:
		if s.current+1 < len(s.quiz.Questions) {
			s.current++
			s.enterPrepLocked()
			return nil
		}
		s.finishLocked(false)
		return nil
	default:
		return domain.ErrWrongPhase
	}
}

// Abort ends the session from any phase without archiving results. Host only.
func (s *Session) Abort(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID != s.hostConn {
		return domain.ErrNotAuthorized
	}
	if s.phase == PhaseFinished {
		return nil
	}
	s.finishLocked(true)
	return nil
}

// Reset returns the session to an empty lobby, dropping all players and
// scores. Host only.
func (s *Session) Reset(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID != s.hostConn {
		return domain.ErrNotAuthorized
	}
	s.toPhaseLocked(PhaseLobby)
	s.emitLocked(Event{Type: EventReset, Audience: AudienceAll})
	s.players = make(map[string]*player)
	s.joinSeq = 0
	s.current = -1
	return nil
}

// Kick removes a player on the host's request and frees their username.
func (s *Session) Kick(connID, targetConnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID != s.hostConn {
		return domain.ErrNotAuthorized
	}
	p, ok := s.players[targetConnID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	delete(s.players, targetConnID)

	s.emitLocked(Event{Type: EventKicked, Audience: AudiencePlayer, Target: targetConnID})
	s.emitLocked(Event{Type: EventPlayerLeft, Audience: AudienceAll, Payload: PlayerLeftPayload{
		PlayerID:    targetConnID,
		Username:    p.username,
		PlayerCount: len(s.players),
	}})

	if s.phase == PhaseCollecting && s.allAnsweredLocked() {
		s.enterRevealLocked()
	}
	return nil
}

// Leave removes a player at any phase. Unknown connections are ignored.
func (s *Session) Leave(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return
	}
	delete(s.players, connID)
	s.emitLocked(Event{Type: EventPlayerLeft, Audience: AudienceAll, Payload: PlayerLeftPayload{
		PlayerID:    connID,
		Username:    p.username,
		PlayerCount: len(s.players),
	}})

	if s.phase == PhaseCollecting && s.allAnsweredLocked() {
		s.enterRevealLocked()
	}
}

// Disconnected handles a dropped connection. A dropped player simply leaves;
// a dropped host starts the grace countdown, after which the session closes.
func (s *Session) Disconnected(connID string) {
	s.mu.Lock()
	if connID != s.hostConn {
		s.mu.Unlock()
		s.Leave(connID)
		return
	}
	defer s.mu.Unlock()

	if s.phase == PhaseFinished {
		return
	}
	s.hostGone = true
	s.cancelGrace = s.sched.Schedule(s.cfg.HostGrace, func() {
		s.mu.Lock()
		if !s.hostGone || s.phase == PhaseFinished {
			s.mu.Unlock()
			return
		}
		s.toPhaseLocked(PhaseFinished)
		s.emitLocked(Event{Type: EventClosed, Audience: AudienceAll, Payload: ClosedPayload{
			Reason: "host left the game",
		}})
		onClose := s.onClose
		s.mu.Unlock()
		if onClose != nil {
			onClose()
		}
	})
}

// ReclaimHost re-binds the host seat to a new connection. The host token
// issued at creation is the only credential; connection IDs are transient.
func (s *Session) ReclaimHost(hostToken, newConnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hostToken != s.hostToken {
		return domain.ErrNotAuthorized
	}
	s.hostConn = newConnID
	s.hostGone = false
	if s.cancelGrace != nil {
		s.cancelGrace()
		s.cancelGrace = nil
	}
	return nil
}

func (s *Session) finishLocked(aborted bool) {
	s.toPhaseLocked(PhaseFinished)
	standings := s.standingsLocked()
	s.emitLocked(Event{Type: EventFinished, Audience: AudienceAll, Payload: FinishedPayload{
		Entries: standings,
		Aborted: aborted,
	}})

	if aborted || s.onFinish == nil {
		return
	}
	result := s.resultLocked(standings)
	// Fire-and-forget: history persistence never blocks or fails the game.
	go s.onFinish(result)
}

func (s *Session) resultLocked(standings []domain.LeaderboardEntry) domain.SessionResult {
	rankByName := make(map[string]int, len(standings))
	for _, e := range standings {
		rankByName[e.Username] = e.Rank
	}
	results := make([]domain.PlayerResult, 0, len(s.players))
	for _, p := range s.players {
		answers := make(map[int]domain.Answer, len(p.answers))
		for i, a := range p.answers {
			answers[i] = a
		}
		results = append(results, domain.PlayerResult{
			Username:   p.username,
			FinalScore: p.score,
			Rank:       rankByName[p.username],
			Answers:    answers,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Rank < results[j].Rank })
	return domain.SessionResult{
		QuizID:     s.quiz.ID,
		SessionPin: s.pin,
		Players:    results,
		FinishedAt: s.now(),
	}
}

// sortedPlayersLocked orders players by score descending; ties keep join order.
func (s *Session) sortedPlayersLocked() []*player {
	ordered := make([]*player, 0, len(s.players))
	for _, p := range s.players {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].joinOrder < ordered[j].joinOrder
	})
	return ordered
}

func (s *Session) standingsLocked() []domain.LeaderboardEntry {
	ordered := s.sortedPlayersLocked()
	entries := make([]domain.LeaderboardEntry, len(ordered))
	for i, p := range ordered {
		entries[i] = domain.LeaderboardEntry{Rank: i + 1, Username: p.username, Score: p.score}
	}
	return entries
}

func (s *Session) rankByConnLocked() map[string]int {
	ordered := s.sortedPlayersLocked()
	ranks := make(map[string]int, len(ordered))
	for i, p := range ordered {
		ranks[p.connID] = i + 1
	}
	return ranks
}
