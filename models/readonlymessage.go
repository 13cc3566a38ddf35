package models

import "reflect"

// ReadOnlyMessage is an immutable snapshot of a Message. Data is copied on the way in and on the way out,
// so no holder can observe another holder's mutations.
type ReadOnlyMessage[T any] struct {
	data      T
	callback  CallbackFunc[T]
	priority  int
	tunnelID  string
	messageID string
	copy      Copier[T]
}

// Data provides a copy of the data.
func (rom *ReadOnlyMessage[T]) Data() (T, error) {
	return rom.copy(rom.data)
}

// Callback returns the completion callback.
func (rom *ReadOnlyMessage[T]) Callback() CallbackFunc[T] {
	return rom.callback
}

// Priority returns the message priority.
func (rom *ReadOnlyMessage[T]) Priority() int {
	return rom.priority
}

// TunnelID returns the id of the tunnel holding the snapshot.
func (rom *ReadOnlyMessage[T]) TunnelID() string {
	return rom.tunnelID
}

// MessageID returns the id of the message the snapshot was taken from.
func (rom *ReadOnlyMessage[T]) MessageID() string {
	return rom.messageID
}

// Clone creates an independent deep copy with the same id, priority, tunnel id and callback.
func (rom *ReadOnlyMessage[T]) Clone() (*ReadOnlyMessage[T], error) {
	return rom.build(rom.data, rom.tunnelID)
}

// WithData creates a new snapshot of the same message carrying different data.
// Transforms use it to produce their result without touching the input snapshot.
func (rom *ReadOnlyMessage[T]) WithData(data T) (*ReadOnlyMessage[T], error) {
	if isAbsent(data) {
		return nil, ErrInvalidData
	}

	return rom.build(data, rom.tunnelID)
}

// WithTunnelID creates a new snapshot of the same message stamped with a different tunnel id.
func (rom *ReadOnlyMessage[T]) WithTunnelID(tunnelID string) (*ReadOnlyMessage[T], error) {
	if tunnelID == "" {
		return nil, ErrInvalidTunnelID
	}

	return rom.build(rom.data, tunnelID)
}

func (rom *ReadOnlyMessage[T]) build(data T, tunnelID string) (*ReadOnlyMessage[T], error) {

	copied, err := rom.copy(data)
	if err != nil {
		return nil, err
	}

	return &ReadOnlyMessage[T]{
		data:      copied,
		callback:  rom.callback,
		priority:  rom.priority,
		tunnelID:  tunnelID,
		messageID: rom.messageID,
		copy:      rom.copy,
	}, nil
}

// Equals compares priority, tunnel id, message id and data. Callbacks are not comparable and are ignored.
func (rom *ReadOnlyMessage[T]) Equals(other *ReadOnlyMessage[T]) bool {
	if other == nil {
		return false
	}

	return other.priority == rom.priority &&
		other.tunnelID == rom.tunnelID &&
		other.messageID == rom.messageID &&
		reflect.DeepEqual(other.data, rom.data)
}
