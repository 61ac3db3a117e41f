package domain

import "time"

// Question models a multiple-choice question with exactly four options.
type Question struct {
	Text          string   `json:"text"`
	ImageRef      string   `json:"imageRef,omitempty"`
	Options       []string `json:"options"`
	CorrectIndex  int      `json:"correctIndex"`
	PrepSeconds   int      `json:"prepSeconds"`   // display-only buffer before answers open
	AnswerSeconds int      `json:"answerSeconds"` // answer window length
}

// Quiz is an ordered set of questions, fixed for the lifetime of a session.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answer records one player's submission for one question.
type Answer struct {
	Option       int           `json:"option"`
	Correct      bool          `json:"correct"`
	Points       int           `json:"points"`
	ResponseTime time.Duration `json:"responseTime"`
}

// LeaderboardEntry is a ranked standings row.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// PlayerResult is the immutable per-player record emitted when a session finishes.
type PlayerResult struct {
	Username   string         `json:"username"`
	FinalScore int            `json:"finalScore"`
	Rank       int            `json:"rank"`
	Answers    map[int]Answer `json:"answers"`
}

// SessionResult is handed to the history store once, at FINISHED.
type SessionResult struct {
	QuizID     string         `json:"quizId"`
	SessionPin string         `json:"sessionPin"`
	Players    []PlayerResult `json:"players"`
	FinishedAt time.Time      `json:"finishedAt"`
}
