package models

import (
	"fmt"
	"time"

	"github.com/houseofcat/pistol/utils"
)

// ProcessReceipt reports the outcome of a worker processing one message.
type ProcessReceipt struct {
	MessageID string
	TunnelID  string
	Success   bool
	Error     error
	Duration  time.Duration
}

// ToString allows you to quickly log the ProcessReceipt struct as a string.
func (rec *ProcessReceipt) ToString() string {
	if rec.Success {
		return fmt.Sprintf("[MessageID: %s] [TunnelID: %s] - Processed.\r\n", rec.MessageID, rec.TunnelID)
	}

	return fmt.Sprintf("[MessageID: %s] [TunnelID: %s] - Failed.\r\nError: %s\r\n", rec.MessageID, rec.TunnelID, rec.Error)
}

// Letter addresses a Message to a tunnel. An empty TunnelID routes by content.
type Letter[T any] struct {
	LetterID   string
	RetryCount uint32
	TunnelID   string
	Message    *Message[T]
}

// NewLetter addresses the message to a tunnel id, or to content routing when tunnelID is empty.
func NewLetter[T any](tunnelID string, message *Message[T], retryCount uint32) *Letter[T] {
	return &Letter[T]{
		LetterID:   utils.UUIDGenerator(),
		RetryCount: retryCount,
		TunnelID:   tunnelID,
		Message:    message,
	}
}

// PublishReceipt is a way to monitor offers made by the publisher and to initiate a retry.
type PublishReceipt[T any] struct {
	LetterID     string
	MessageID    string
	TunnelID     string
	FailedLetter *Letter[T]
	Success      bool
	Error        error
}

// ToString allows you to quickly log the PublishReceipt struct as a string.
func (rec *PublishReceipt[T]) ToString() string {
	if rec.Success {
		return fmt.Sprintf("[LetterID: %s] - Publish successful.\r\n", rec.LetterID)
	}

	return fmt.Sprintf("[LetterID: %s] - Publish failed.\r\nError: %s\r\n", rec.LetterID, rec.Error)
}
