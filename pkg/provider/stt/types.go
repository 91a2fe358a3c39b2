package stt

import "time"

// Transcript represents a speech-to-text result. Both partial and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string `json:"text"`

	// IsFinal indicates whether the provider committed to this result.
	IsFinal bool `json:"is_final"`

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64 `json:"confidence,omitempty"`

	// Words contains per-word detail when available.
	Words []WordDetail `json:"words,omitempty"`

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration `json:"-"`

	// Duration is the length of the utterance.
	Duration time.Duration `json:"-"`
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"-"`
	End        time.Duration `json:"-"`
	Confidence float64       `json:"confidence,omitempty"`
}

// KeywordBoost represents a keyword to boost in recognition.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "bathtub").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
