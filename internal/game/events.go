package game

import "quizlive-service/internal/domain"

// Audience selects who receives an event.
type Audience int

const (
	// AudienceAll targets the host and every joined player.
	AudienceAll Audience = iota
	// AudienceHost targets the host connection only.
	AudienceHost
	// AudiencePlayer targets the single connection named in Event.Target.
	AudiencePlayer
)

// Event is emitted by a session on every observable state change. The
// transport adapter fans events out to connections; sessions never talk to
// sockets directly.
type Event struct {
	Type     string
	Audience Audience
	Target   string // connection ID, set when Audience is AudiencePlayer
	Payload  any
}

type CountdownPayload struct {
	Seconds int `json:"seconds"`
}

type QuestionPayload struct {
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	Text        string `json:"text"`
	ImageRef    string `json:"imageRef,omitempty"`
	PrepSeconds int    `json:"prepSeconds"`
}

type CollectingPayload struct {
	Index         int      `json:"index"`
	Options       []string `json:"options"`
	AnswerSeconds int      `json:"answerSeconds"`
}

type RevealPayload struct {
	Index         int   `json:"index"`
	CorrectOption int   `json:"correctOption"`
	OptionCounts  []int `json:"optionCounts"`
}

type LeaderboardPayload struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

type FinishedPayload struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
	Aborted bool                      `json:"aborted"`
}

// PlayerID is the kick target for host:kick; it is only meaningful within
// the session's lifetime.
type PlayerJoinedPayload struct {
	PlayerID    string `json:"playerId"`
	Username    string `json:"username"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerLeftPayload struct {
	PlayerID    string `json:"playerId"`
	Username    string `json:"username"`
	PlayerCount int    `json:"playerCount"`
}

type AnswerCountPayload struct {
	Answered int `json:"answered"`
	Players  int `json:"players"`
}

type PersonalResultPayload struct {
	Correct    bool `json:"correct"`
	Points     int  `json:"points"`
	TotalScore int  `json:"totalScore"`
	Rank       int  `json:"rank"`
}

type ClosedPayload struct {
	Reason string `json:"reason"`
}

// Event type names as they appear on the wire.
const (
	EventCountdown      = "countdown"
	EventQuestion       = "question"
	EventCollecting     = "collecting"
	EventReveal         = "reveal"
	EventLeaderboard    = "leaderboard"
	EventFinished       = "finished"
	EventReset          = "reset"
	EventClosed         = "closed"
	EventPlayerJoined   = "playerJoined"
	EventPlayerLeft     = "playerLeft"
	EventAnswerCount    = "answerCount"
	EventPersonalResult = "personalResult"
	EventKicked         = "kicked"
)
