package server

import (
	"encoding/json"
	"fmt"
)

// Message types carried in the type field of an [Envelope].
const (
	// Inbound.
	TypeTranscript = "transcript"
	TypeSelect     = "select"
	TypeSpeak      = "speak"
	TypeControl    = "control"

	// Outbound.
	TypeState         = "state"
	TypePose          = "pose"
	TypeTranscription = "transcription_result"
	TypeSpeechAction  = "speech_action"
	TypeError         = "error"
)

// Control commands accepted in a [ControlPayload].
const (
	CommandGreet       = "greet"
	CommandStartGame   = "start_game"
	CommandPause       = "pause"
	CommandResume      = "resume"
	CommandTogglePause = "toggle_pause"
	CommandJump        = "jump"
	CommandReset       = "reset"
)

// Envelope is the JSON frame exchanged over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TranscriptPayload carries a committed client-side transcript.
type TranscriptPayload struct {
	Text string `json:"text"`
}

// SelectPayload carries an answer picked in the UI.
type SelectPayload struct {
	Answer string `json:"answer"`
}

// SpeechActions are the side-effect tokens bound to a speak request.
type SpeechActions struct {
	Start []string `json:"start,omitempty"`
	End   []string `json:"end,omitempty"`
}

// SpeakPayload asks the avatar to say text.
type SpeakPayload struct {
	Text          string        `json:"text"`
	SpeechActions SpeechActions `json:"speechActions"`
}

// ControlPayload carries a session control command. Room is only used by
// [CommandJump].
type ControlPayload struct {
	Command string `json:"command"`
	Room    string `json:"room,omitempty"`
}

// TranscriptionPayload reports server-side speech recognition results.
type TranscriptionPayload struct {
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SpeechActionPayload reports one side effect applied by the dialogue.
type SpeechActionPayload struct {
	Action string `json:"action"`
}

// ErrorPayload reports a rejected inbound message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode marshals payload into an [Envelope] of the given type.
func Encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("server: encode %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

func decodePayload[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, fmt.Errorf("%w: %s without payload", ErrBadMessage, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrBadMessage, env.Type, err)
	}
	return v, nil
}
