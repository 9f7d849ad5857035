// Package app provides the core application service for Wails bindings.
package app

// Event names for frontend communication.
const (
	EventAudioChunk          = "audio-chunk"
	EventTranscriptionResult = "transcription-result"
	EventCaptureStatus       = "capture-status"
	EventSetupProgress       = "recognizer-setup-progress"
	EventSetupError          = "recognizer-setup-error"
	EventSetupComplete       = "recognizer-setup-complete"
)
