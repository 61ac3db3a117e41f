package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no active session matches a PIN.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomAlreadyStarted is returned when a join arrives past the joinable window.
	ErrRoomAlreadyStarted = errors.New("room already started")
	// ErrUsernameTaken is returned when the username is held by a joined player.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrNotAuthorized is returned when a non-host issues a host command.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrPlayerNotFound is returned when a kick names an unknown player.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrNotInGame is returned when a connection acts without having joined.
	ErrNotInGame = errors.New("not in game")
	// ErrNotCollecting is returned when an answer arrives outside the answer window.
	ErrNotCollecting = errors.New("answers are not being collected")
	// ErrAlreadyAnswered is returned on a repeat submission; state is unchanged.
	ErrAlreadyAnswered = errors.New("already answered this question")
	// ErrNoQuestions is returned when a session is created from an empty quiz.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrNoPlayers is returned when the host starts a game with an empty lobby.
	ErrNoPlayers = errors.New("cannot start game with no players")
	// ErrWrongPhase is returned for a host command the current phase does not allow.
	ErrWrongPhase = errors.New("command not valid in current phase")
	// ErrInvalidOption is returned for an answer index outside the option range.
	ErrInvalidOption = errors.New("invalid answer option")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
)
