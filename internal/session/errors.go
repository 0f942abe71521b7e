package session

import "errors"

var (
	// ErrSessionActive is returned when launching while a run is in progress
	ErrSessionActive = errors.New("a session is already running")
	// ErrNotRunning is returned by controls when no run is in progress
	ErrNotRunning = errors.New("no session is running")
	// ErrAlreadyPaused is returned when pausing a paused run
	ErrAlreadyPaused = errors.New("session is already paused")
	// ErrNotPaused is returned when resuming a run that is not paused
	ErrNotPaused = errors.New("session is not paused")
	// ErrPauseFailed is returned when hashcat did not confirm a pause in time
	ErrPauseFailed = errors.New("failed to pause session")
	// ErrResumeFailed is returned when hashcat did not confirm a resume in time
	ErrResumeFailed = errors.New("failed to resume session")
)
