package models

import (
	"fmt"
	"reflect"

	"github.com/houseofcat/pistol/utils"
)

const (
	// DefaultMinPriority is the lowest accepted message priority.
	DefaultMinPriority = 1

	// DefaultMaxPriority is the highest accepted message priority.
	DefaultMaxPriority = 100
)

// Factory builds Messages with an injected id generator and deep copier.
type Factory[T any] struct {
	GenerateID  IDGenerator
	Copy        Copier[T]
	MinPriority int
	MaxPriority int
}

// NewFactory creates a Factory. Nil arguments fall back to uuid ids and reflection deep copies.
func NewFactory[T any](generateID IDGenerator, copier Copier[T]) *Factory[T] {

	if generateID == nil {
		generateID = utils.UUIDGenerator
	}

	if copier == nil {
		copier = utils.DeepCopy[T]
	}

	return &Factory[T]{
		GenerateID:  generateID,
		Copy:        copier,
		MinPriority: DefaultMinPriority,
		MaxPriority: DefaultMaxPriority,
	}
}

// NewMessage creates a new Message with the default Factory.
func NewMessage[T any](data T, callback CallbackFunc[T], priority int) (*Message[T], error) {
	return NewFactory[T](nil, nil).NewMessage(data, callback, priority)
}

// NewMessage validates the properties and creates a new Message holding a deep copy of data.
func (f *Factory[T]) NewMessage(data T, callback CallbackFunc[T], priority int) (*Message[T], error) {

	if isAbsent(data) {
		return nil, invalidProperty(ErrInvalidData)
	}

	if callback == nil {
		return nil, invalidProperty(ErrInvalidCallback)
	}

	if priority < f.MinPriority || priority > f.MaxPriority {
		return nil, invalidProperty(ErrInvalidPriority)
	}

	copied, err := f.Copy(data)
	if err != nil {
		return nil, invalidProperty(fmt.Errorf("%w: %w", ErrInvalidData, err))
	}

	return &Message[T]{
		data:      copied,
		callback:  callback,
		priority:  priority,
		messageID: f.GenerateID(),
		factory:   f,
	}, nil
}

func isAbsent(data any) bool {

	value := reflect.ValueOf(data)
	if !value.IsValid() {
		return true
	}

	switch value.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return value.IsNil()
	default:
		return false
	}
}
