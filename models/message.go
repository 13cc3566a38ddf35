package models

import (
	"reflect"
	"sync"
)

// Message is the producer-owned envelope. Only its tunnel id changes after construction,
// when a tunnel accepts it.
type Message[T any] struct {
	data      T
	callback  CallbackFunc[T]
	priority  int
	messageID string
	tunnelID  string
	factory   *Factory[T]
	lock      sync.RWMutex
}

// Data returns the message's own copy of the payload, never the value it was built from.
func (msg *Message[T]) Data() T {
	return msg.data
}

// Callback returns the completion callback.
func (msg *Message[T]) Callback() CallbackFunc[T] {
	return msg.callback
}

// Priority returns the message priority.
func (msg *Message[T]) Priority() int {
	return msg.priority
}

// MessageID returns the id assigned at construction.
func (msg *Message[T]) MessageID() string {
	return msg.messageID
}

// TunnelID returns the id of the last tunnel that accepted the message, empty if none did.
func (msg *Message[T]) TunnelID() string {
	msg.lock.RLock()
	defer msg.lock.RUnlock()

	return msg.tunnelID
}

// SetTunnelID stamps the accepting tunnel's id on the message.
func (msg *Message[T]) SetTunnelID(tunnelID string) error {
	if tunnelID == "" {
		return ErrInvalidTunnelID
	}

	msg.lock.Lock()
	defer msg.lock.Unlock()

	msg.tunnelID = tunnelID
	return nil
}

// HasRequiredProperties reports whether the message carries data, a callback and a factory.
// Only a zero-value Message fails this check.
func (msg *Message[T]) HasRequiredProperties() bool {
	return msg.factory != nil && msg.callback != nil && !isAbsent(msg.data)
}

// Snapshot deep copies the current data into a new ReadOnlyMessage.
func (msg *Message[T]) Snapshot() (*ReadOnlyMessage[T], error) {

	data, err := msg.factory.Copy(msg.data)
	if err != nil {
		return nil, err
	}

	return &ReadOnlyMessage[T]{
		data:      data,
		callback:  msg.callback,
		priority:  msg.priority,
		tunnelID:  msg.TunnelID(),
		messageID: msg.messageID,
		copy:      msg.factory.Copy,
	}, nil
}

// CloneComplete creates a new Message with a new id, a deep copy of the data and the same callback and priority.
func (msg *Message[T]) CloneComplete() (*Message[T], error) {
	return msg.factory.NewMessage(msg.data, msg.callback, msg.priority)
}

// CloneWithCallback is CloneComplete with a different callback.
func (msg *Message[T]) CloneWithCallback(callback CallbackFunc[T]) (*Message[T], error) {
	if callback == nil {
		return nil, ErrInvalidCallback
	}

	return msg.factory.NewMessage(msg.data, callback, msg.priority)
}

// CloneWithPriority is CloneComplete with a different priority.
func (msg *Message[T]) CloneWithPriority(priority int) (*Message[T], error) {
	return msg.factory.NewMessage(msg.data, msg.callback, priority)
}

// CloneWithData is CloneComplete with different data.
func (msg *Message[T]) CloneWithData(data T) (*Message[T], error) {
	return msg.factory.NewMessage(data, msg.callback, msg.priority)
}

// Equals compares two messages field by field, excluding the callback.
func (msg *Message[T]) Equals(other *Message[T]) bool {
	if other == nil {
		return false
	}

	return other.priority == msg.priority &&
		other.TunnelID() == msg.TunnelID() &&
		other.messageID == msg.messageID &&
		reflect.DeepEqual(other.data, msg.data)
}
