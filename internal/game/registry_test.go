package game

import (
	"errors"
	"sync"
	"testing"

	"quizlive-service/internal/domain"
)

func TestCreateRejectsEmptyQuiz(t *testing.T) {
	registry := NewRegistry(Config{})
	if _, err := registry.Create(domain.Quiz{ID: "empty"}, "host"); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestPinFormatAndUniqueness(t *testing.T) {
	registry := NewRegistry(Config{})
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		s, err := registry.Create(testQuiz(), "host")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		pin := s.Pin()
		if len(pin) != 6 {
			t.Fatalf("expected 6-digit pin, got %q", pin)
		}
		for _, c := range pin {
			if c < '0' || c > '9' {
				t.Fatalf("pin %q contains non-digit", pin)
			}
		}
		if seen[pin] {
			t.Fatalf("duplicate pin %q", pin)
		}
		seen[pin] = true
	}
}

func TestConcurrentCreates(t *testing.T) {
	registry := NewRegistry(Config{})

	var wg sync.WaitGroup
	pins := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := registry.Create(testQuiz(), "host")
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			pins <- s.Pin()
		}()
	}
	wg.Wait()
	close(pins)

	seen := make(map[string]bool)
	for pin := range pins {
		if seen[pin] {
			t.Fatalf("duplicate pin %q from concurrent creates", pin)
		}
		seen[pin] = true
	}
}

func TestFindAndRemove(t *testing.T) {
	registry := NewRegistry(Config{})

	s, err := registry.Create(testQuiz(), "host")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if found, err := registry.Find(s.Pin()); err != nil || found != s {
		t.Fatalf("expected to find session, got %v %v", found, err)
	}
	if _, err := registry.Find("000000"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	registry.Remove(s.Pin())
	if _, err := registry.Find(s.Pin()); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected removed pin to be unknown, got %v", err)
	}
}

func TestSameUsernameAcrossSessions(t *testing.T) {
	registry := NewRegistry(Config{})
	s1, err := registry.Create(testQuiz(), "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s2, err := registry.Create(testQuiz(), "host-2")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s1.Join("conn-1", "Alice"); err != nil {
		t.Fatalf("join s1: %v", err)
	}
	if _, err := s2.Join("conn-2", "Alice"); err != nil {
		t.Fatalf("join s2 with same name: %v", err)
	}
}
