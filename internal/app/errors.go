package app

import "errors"

var (
	// ErrTextRequired indicates an inbound query without text.
	ErrTextRequired = errors.New("query text required")
	// ErrInvalidInputType indicates an unknown input_type value.
	ErrInvalidInputType = errors.New("invalid input type")
	// ErrSpeechNotConfigured indicates a transcription request without an
	// ASR service configured.
	ErrSpeechNotConfigured = errors.New("speech recognition not configured")
)
