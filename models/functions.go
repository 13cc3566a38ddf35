package models

import "context"

// TransformFunc is the tunnel's single processing function, applied when a worker dequeues a snapshot.
type TransformFunc[T any] func(ctx context.Context, message *ReadOnlyMessage[T]) (*ReadOnlyMessage[T], error)

// PreTransformFunc is applied to a snapshot right before it is stored in a tunnel.
type PreTransformFunc[T any] func(message *ReadOnlyMessage[T]) (*ReadOnlyMessage[T], error)

// MatchFunc decides whether a conditional tunnel accepts a routed snapshot. Expected to be side-effect free.
type MatchFunc[T any] func(message *ReadOnlyMessage[T]) bool

// CallbackFunc is the producer's completion callback, invoked with the transformed snapshot.
type CallbackFunc[T any] func(message *ReadOnlyMessage[T]) error

// IDGenerator produces collision-free string tokens.
type IDGenerator func() string

// Copier produces a structurally independent copy of a payload.
type Copier[T any] func(data T) (T, error)
