package domain

import "encoding/json"

// SignalPayload is the payload of every call-signaling event. Which fields
// are set depends on the envelope type; session descriptions, candidates
// and caller info travel as opaque JSON.
type SignalPayload struct {
	To         UserID          `json:"to,omitempty"`
	From       UserID          `json:"from,omitempty"`
	CallerInfo json.RawMessage `json:"callerInfo,omitempty"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Sender     json.RawMessage `json:"sender,omitempty"`
}

// RoomPayload carries join-room and leave-room.
type RoomPayload struct {
	RoomID RoomID `json:"roomId"`
}

type GroupMessagePayload struct {
	RoomID  RoomID   `json:"roomId"`
	Message *Message `json:"message"`
}

type ErrorPayload struct {
	Error string `json:"error"`
	On    string `json:"on,omitempty"`
}
