// Package types provides shared type definitions for the application.
package types

// EndpointInfo describes an audio endpoint for the frontend.
type EndpointInfo struct {
	ID               string `json:"id"`
	UID              string `json:"uid"`
	Name             string `json:"name"`
	Kind             string `json:"kind"` // "input", "output", "virtual-aggregate"
	IsDefault        bool   `json:"isDefault"`
	SampleRate       int    `json:"sampleRate"`
	Channels         int    `json:"channels"`
	SampleType       string `json:"sampleType"` // "f32", "i16", "i32"
	SupportsLoopback bool   `json:"supportsLoopback"`
}

// AudioChunk is the payload of the "audio-chunk" event emitted on the
// configured cadence while a capture session is running.
type AudioChunk struct {
	DeviceID     string  `json:"deviceId"`
	AudioData    string  `json:"audioData"` // base64 PCM16 LE mono at the pipeline rate
	SampleRate   int     `json:"sampleRate"`
	Channels     int     `json:"channels"`
	Level        float64 `json:"level"`     // dB, clamped at -60
	Timestamp    int64   `json:"timestamp"` // ms since epoch
	Duration     int64   `json:"duration"`  // whole seconds since session start
	TotalSamples uint64  `json:"totalSamples"`
}

// TranscriptionResult is the payload of the "transcription-result" event.
type TranscriptionResult struct {
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"` // 0-1
	StartTime    float64 `json:"startTime"`  // seconds since session start
	EndTime      float64 `json:"endTime"`    // seconds since session start
	Timestamp    int64   `json:"timestamp"`  // ms since epoch
	Language     string  `json:"language,omitempty"`
	LanguageName string  `json:"languageName,omitempty"`
}

// SessionStatus reports the capture session state to the frontend.
// The frontend polls this when events stop arriving.
type SessionStatus struct {
	State             string `json:"state"` // "idle", "starting", "running", "stopping", "failed"
	ActiveEndpointUID string `json:"activeEndpointUid,omitempty"`
	SampleRate        int    `json:"sampleRate,omitempty"`
	DroppedFrames     uint64 `json:"droppedFrames"`
	DisplacedWindows  uint64 `json:"displacedWindows"`
	LastChunkTime     int64  `json:"lastChunkTimestamp,omitempty"`      // ms since epoch
	LastTranscript    int64  `json:"lastTranscriptTimestamp,omitempty"` // ms since epoch
	FaultKind         string `json:"faultKind,omitempty"`
	FaultMessage      string `json:"faultMessage,omitempty"`
}

// RecognizerInfo describes a speech recognizer for the frontend.
type RecognizerInfo struct {
	Name          string `json:"name"`
	DisplayName   string `json:"displayName"`
	IsLocal       bool   `json:"isLocal"`
	RequiresSetup bool   `json:"requiresSetup"`
	SetupProgress int    `json:"setupProgress"` // 0-100, -1 if not started
	IsReady       bool   `json:"isReady"`
}

// TranscriptEntry is a persisted transcript for history queries.
type TranscriptEntry struct {
	ID         string  `json:"id"`
	SessionID  string  `json:"sessionId"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	Timestamp  int64   `json:"timestamp"`
	Language   string  `json:"language,omitempty"`
}
