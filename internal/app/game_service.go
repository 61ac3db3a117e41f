package app

import (
	"context"
	"log"
	"time"

	"quizlive-service/internal/domain"
	"quizlive-service/internal/game"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultArchiver persists finished-session results. Implementations are
// fire-and-forget from the game's perspective.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, result domain.SessionResult) error
}

// HostView is returned to a host when a session is created or reclaimed.
type HostView struct {
	Pin           string `json:"pin"`
	HostToken     string `json:"hostToken"`
	Title         string `json:"title"`
	QuestionCount int    `json:"questionCount"`
}

// GameService wires the session registry to the quiz store and the history
// store. It holds no game state of its own.
type GameService struct {
	registry *game.Registry
	quizzes  QuizRepository
	archiver ResultArchiver
}

func NewGameService(registry *game.Registry, quizzes QuizRepository, archiver ResultArchiver) *GameService {
	s := &GameService{registry: registry, quizzes: quizzes, archiver: archiver}
	registry.SetResultSink(s.archive)
	return s
}

func (s *GameService) archive(result domain.SessionResult) {
	if s.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.archiver.ArchiveResult(ctx, result); err != nil {
		log.Printf("archive result for pin %s: %v", result.SessionPin, err)
	}
}

// HostSession loads the quiz and opens a new session for it.
func (s *GameService) HostSession(ctx context.Context, quizID, hostConnID string) (HostView, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return HostView{}, err
	}
	session, err := s.registry.Create(quiz, hostConnID)
	if err != nil {
		return HostView{}, err
	}
	return HostView{
		Pin:           session.Pin(),
		HostToken:     session.HostToken(),
		Title:         session.Title(),
		QuestionCount: len(quiz.Questions),
	}, nil
}

// ReclaimHost re-binds the host seat using the token issued at creation.
func (s *GameService) ReclaimHost(pin, hostToken, newConnID string) (HostView, error) {
	session, err := s.registry.Find(pin)
	if err != nil {
		return HostView{}, err
	}
	if err := session.ReclaimHost(hostToken, newConnID); err != nil {
		return HostView{}, err
	}
	return HostView{
		Pin:       session.Pin(),
		HostToken: session.HostToken(),
		Title:     session.Title(),
	}, nil
}

// CheckRoom reports whether a PIN names a session that can still be joined.
func (s *GameService) CheckRoom(pin string) error {
	session, err := s.registry.Find(pin)
	if err != nil {
		return err
	}
	if !session.Joinable() {
		return domain.ErrRoomAlreadyStarted
	}
	return nil
}

// Join adds a player to the session behind a PIN.
func (s *GameService) Join(pin, connID, username string) (game.PlayerView, error) {
	session, err := s.registry.Find(pin)
	if err != nil {
		return game.PlayerView{}, err
	}
	return session.Join(connID, username)
}

// SubmitAnswer records an answer for the current question.
func (s *GameService) SubmitAnswer(pin, connID string, option int) (domain.Answer, error) {
	session, err := s.registry.Find(pin)
	if err != nil {
		return domain.Answer{}, err
	}
	return session.SubmitAnswer(connID, option)
}

// Start begins the game. Host only.
func (s *GameService) Start(pin, connID string) error {
	session, err := s.registry.Find(pin)
	if err != nil {
		return err
	}
	return session.Start(connID)
}

// Next advances past REVEAL or LEADERBOARD. Host only.
func (s *GameService) Next(pin, connID string) error {
	session, err := s.registry.Find(pin)
	if err != nil {
		return err
	}
	return session.Next(connID)
}

// Abort ends the session early. Host only.
func (s *GameService) Abort(pin, connID string) error {
	session, err := s.registry.Find(pin)
	if err != nil {
		return err
	}
	return session.Abort(connID)
}

// Reset returns the session to an empty lobby. Host only.
func (s *GameService) Reset(pin, connID string) error {
	session, err := s.registry.Find(pin)
	if err != nil {
		return err
	}
	return session.Reset(connID)
}

// Kick removes a player. Host only.
func (s *GameService) Kick(pin, connID, targetConnID string) error {
	session, err := s.registry.Find(pin)
	if err != nil {
		return err
	}
	return session.Kick(connID, targetConnID)
}

// Leave removes a player from the session.
func (s *GameService) Leave(pin, connID string) {
	session, err := s.registry.Find(pin)
	if err != nil {
		return
	}
	session.Leave(connID)
}

// Disconnected routes a dropped connection to the session it was attached to.
func (s *GameService) Disconnected(pin, connID string) {
	session, err := s.registry.Find(pin)
	if err != nil {
		return
	}
	session.Disconnected(connID)
}

// Subscribe returns the session's event feed for one connection. The caller
// must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(pin, connID string) (<-chan game.Event, func(), error) {
	session, err := s.registry.Find(pin)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe(connID)
	return ch, cancel, nil
}
