package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizlive-service/internal/domain"
)

const (
	pinDigits   = 6
	pinModulus  = 1000000
	defaultPrep = 5
	defaultWait = 15
)

// Registry is the process-wide table of active sessions, keyed by PIN. It is
// the only structure shared across sessions and is safe for concurrent use.
type Registry struct {
	cfg      Config
	sched    Scheduler
	now      func() time.Time
	onFinish func(domain.SessionResult)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a registry with the production scheduler and clock.
func NewRegistry(cfg Config) *Registry {
	return NewRegistryWithClock(cfg, NewScheduler(), time.Now)
}

// NewRegistryWithClock is test-only for deterministic timers and timestamps.
func NewRegistryWithClock(cfg Config, sched Scheduler, now func() time.Time) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		sched:    sched,
		now:      now,
		sessions: make(map[string]*Session),
	}
}

// SetResultSink installs the callback that receives results at FINISHED.
// Must be called before any session finishes.
func (r *Registry) SetResultSink(fn func(domain.SessionResult)) {
	r.onFinish = fn
}

// Create builds a session for a quiz and registers it under a fresh PIN.
// PIN rolling and registration happen under one lock, so concurrent creates
// can never share a PIN.
func (r *Registry) Create(quiz domain.Quiz, hostConnID string) (*Session, error) {
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	for i := range quiz.Questions {
		if quiz.Questions[i].AnswerSeconds <= 0 {
			quiz.Questions[i].AnswerSeconds = defaultWait
		}
		if quiz.Questions[i].PrepSeconds < 0 {
			quiz.Questions[i].PrepSeconds = defaultPrep
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var pin string
	for {
		p, err := randomPin()
		if err != nil {
			return nil, err
		}
		if _, taken := r.sessions[p]; !taken {
			pin = p
			break
		}
	}

	s := newSession(pin, hostConnID, uuid.NewString(), quiz, r.cfg, r.sched, r.now)
	s.onFinish = r.onFinish
	s.onClose = func() { r.Remove(pin) }
	r.sessions[pin] = s
	return s, nil
}

// Find looks up an active session by PIN.
func (r *Registry) Find(pin string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[pin]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return s, nil
}

// Remove drops a session from the registry, freeing its PIN.
func (r *Registry) Remove(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, pin)
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// randomPin draws a uniform 6-digit code from crypto/rand.
func randomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinModulus))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", pinDigits, n.Int64()), nil
}
