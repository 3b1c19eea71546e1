package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// MessageType discriminates the message payload.
type MessageType string

const (
	MessageText         MessageType = "TEXT"
	MessageAudio        MessageType = "AUDIO"
	MessageCallOffer    MessageType = "CALL_OFFER"
	MessageCallAnswer   MessageType = "CALL_ANSWER"
	MessageICECandidate MessageType = "ICE_CANDIDATE"
)

// IsSignal reports whether the type carries WebRTC call-setup data rather
// than conversational content.
func (t MessageType) IsSignal() bool {
	return t == MessageCallOffer || t == MessageCallAnswer || t == MessageICECandidate
}

// Message belongs to exactly one room and is immutable once created except
// for deletion. The sender invariant is enforced at insert, not re-checked.
type Message struct {
	ID          int64       `db:"id" json:"id"`
	RoomID      int64       `db:"room_id" json:"room_id"`
	SenderModel SenderModel `db:"sender_model" json:"sender_model"`
	SenderID    int64       `db:"sender_id" json:"sender_id"`
	Type        MessageType `db:"type" json:"type"`

	Text string `db:"text" json:"text,omitempty"`

	AudioURL       *string `db:"audio_url" json:"audio_url,omitempty"`
	AudioDuration  *int    `db:"audio_duration_secs" json:"audio_duration_secs,omitempty"`
	AudioMimeType  *string `db:"audio_mime_type" json:"audio_mime_type,omitempty"`
	AudioSizeBytes *int64  `db:"audio_size_bytes" json:"audio_size_bytes,omitempty"`
	StorageID      *string `db:"storage_id" json:"storage_id,omitempty"`

	Payload types.JSONText `db:"payload" json:"payload,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AudioMeta describes an uploaded voice clip.
type AudioMeta struct {
	URL          string `json:"url"`
	DurationSecs int    `json:"duration_secs"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	StorageID    string `json:"storage_id"`
}
