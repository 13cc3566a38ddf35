package tunnel

import (
	"fmt"
	"sync"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/houseofcat/pistol/models"
	"github.com/houseofcat/pistol/worker"
)

const messageHint = 64

// Tunnel is a named FIFO of ReadOnlyMessage snapshots bound to one transform.
// A conditional Tunnel also carries a matcher used by content based routing.
type Tunnel[T any] struct {
	tunnelID     string
	messages     *queue.Queue
	index        map[string][]*models.ReadOnlyMessage[T]
	transform    models.TransformFunc[T]
	preTransform models.PreTransformFunc[T]
	match        models.MatchFunc[T]
	worker       *worker.Worker[T]
	tunnelLock   *sync.RWMutex
}

// NewTunnel creates a new Tunnel. Transform and preTransform may be nil and bound later.
func NewTunnel[T any](
	tunnelID string,
	transform models.TransformFunc[T],
	preTransform models.PreTransformFunc[T]) (*Tunnel[T], error) {

	if tunnelID == "" {
		return nil, models.ErrInvalidTunnelID
	}

	return &Tunnel[T]{
		tunnelID:     tunnelID,
		messages:     queue.New(messageHint),
		index:        make(map[string][]*models.ReadOnlyMessage[T]),
		transform:    transform,
		preTransform: preTransform,
		tunnelLock:   &sync.RWMutex{},
	}, nil
}

// NewConditionalTunnel creates a new Tunnel that accepts routed messages the matcher approves of.
func NewConditionalTunnel[T any](
	tunnelID string,
	match models.MatchFunc[T],
	transform models.TransformFunc[T],
	preTransform models.PreTransformFunc[T]) (*Tunnel[T], error) {

	if match == nil {
		return nil, models.ErrMissingMatcher
	}

	tun, err := NewTunnel(tunnelID, transform, preTransform)
	if err != nil {
		return nil, err
	}

	tun.match = match
	return tun, nil
}

// ID returns the tunnel id.
func (tun *Tunnel[T]) ID() string {
	return tun.tunnelID
}

// IsConditional reports whether the tunnel was created with a matcher.
func (tun *Tunnel[T]) IsConditional() bool {
	return tun.match != nil
}

// Match runs the matcher against a snapshot. Plain tunnels match nothing.
func (tun *Tunnel[T]) Match(message *models.ReadOnlyMessage[T]) bool {
	if tun.match == nil || message == nil {
		return false
	}

	return tun.match(message)
}

// Transform returns the bound transform, nil when none is bound yet.
func (tun *Tunnel[T]) Transform() models.TransformFunc[T] {
	tun.tunnelLock.RLock()
	defer tun.tunnelLock.RUnlock()

	return tun.transform
}

// BindTransform binds the transform once. A nil transform is ignored.
func (tun *Tunnel[T]) BindTransform(transform models.TransformFunc[T]) error {
	if transform == nil {
		return nil
	}

	tun.tunnelLock.Lock()
	if tun.transform != nil {
		tun.tunnelLock.Unlock()
		return models.ErrTransformAlreadyBound
	}
	tun.transform = transform
	tun.tunnelLock.Unlock()

	tun.signal()
	return nil
}

// SetPreTransform replaces the pre-transform applied on Add. A nil preTransform is ignored.
func (tun *Tunnel[T]) SetPreTransform(preTransform models.PreTransformFunc[T]) {
	if preTransform == nil {
		return
	}

	tun.tunnelLock.Lock()
	defer tun.tunnelLock.Unlock()

	tun.preTransform = preTransform
}

// Add stamps the tunnel id on the message, stores a pre-transformed snapshot and returns a copy of that snapshot.
func (tun *Tunnel[T]) Add(message *models.Message[T]) (*models.ReadOnlyMessage[T], error) {

	if message == nil {
		return nil, models.ErrUndefinedMessage
	}

	if !message.HasRequiredProperties() {
		return nil, models.ErrMissingRequiredProperty
	}

	if err := message.SetTunnelID(tun.tunnelID); err != nil {
		return nil, err
	}

	snapshot, err := message.Snapshot()
	if err != nil {
		return nil, err
	}

	tun.tunnelLock.RLock()
	preTransform := tun.preTransform
	tun.tunnelLock.RUnlock()

	if preTransform != nil {
		snapshot, err = preTransform(snapshot)
		if err != nil {
			return nil, fmt.Errorf("pre-transform on tunnel %s: %w", tun.tunnelID, err)
		}

		if snapshot == nil {
			return nil, models.ErrUndefinedMessage
		}
	}

	// The message may have been re-stamped by a concurrent Add on another tunnel.
	if snapshot.TunnelID() != tun.tunnelID {
		if snapshot, err = snapshot.WithTunnelID(tun.tunnelID); err != nil {
			return nil, err
		}
	}

	tun.tunnelLock.Lock()
	if err = tun.messages.Put(snapshot); err != nil {
		tun.tunnelLock.Unlock()
		return nil, err
	}
	tun.index[snapshot.MessageID()] = append(tun.index[snapshot.MessageID()], snapshot)
	tun.tunnelLock.Unlock()

	tun.signal()

	return snapshot.Clone()
}

// Poll removes and returns the oldest stored snapshot.
func (tun *Tunnel[T]) Poll() (*models.ReadOnlyMessage[T], error) {
	tun.tunnelLock.Lock()
	defer tun.tunnelLock.Unlock()

	if tun.messages.Len() == 0 {
		return nil, models.ErrEmptyTunnel
	}

	items, err := tun.messages.Get(1)
	if err != nil {
		return nil, err
	}

	message := items[0].(*models.ReadOnlyMessage[T])

	stored := tun.index[message.MessageID()]
	if len(stored) <= 1 {
		delete(tun.index, message.MessageID())
	} else {
		tun.index[message.MessageID()] = stored[1:]
	}

	return message, nil
}

// Length returns the number of stored snapshots.
func (tun *Tunnel[T]) Length() int {
	tun.tunnelLock.RLock()
	defer tun.tunnelLock.RUnlock()

	return int(tun.messages.Len())
}

// IsEmpty reports whether the tunnel holds no snapshots.
func (tun *Tunnel[T]) IsEmpty() bool {
	return tun.Length() == 0
}

// ContainsMessageWithID reports whether a snapshot with the message id is stored.
func (tun *Tunnel[T]) ContainsMessageWithID(messageID string) bool {
	tun.tunnelLock.RLock()
	defer tun.tunnelLock.RUnlock()

	return len(tun.index[messageID]) > 0
}

// MessagesWithID returns copies of every stored snapshot with the message id, oldest first.
func (tun *Tunnel[T]) MessagesWithID(messageID string) ([]*models.ReadOnlyMessage[T], error) {
	tun.tunnelLock.RLock()
	stored := tun.index[messageID]
	tun.tunnelLock.RUnlock()

	if len(stored) == 0 {
		return nil, models.ErrNoMessageFound
	}

	clones := make([]*models.ReadOnlyMessage[T], 0, len(stored))
	for _, message := range stored {
		clone, err := message.Clone()
		if err != nil {
			return nil, err
		}
		clones = append(clones, clone)
	}

	return clones, nil
}

// StartWorker attaches a self-continuing Worker to the tunnel, or returns the attached one.
func (tun *Tunnel[T]) StartWorker(
	errorHandler func(error),
	receiptHandler func(*models.ProcessReceipt)) *worker.Worker[T] {

	tun.tunnelLock.Lock()
	if tun.worker != nil {
		w := tun.worker
		tun.tunnelLock.Unlock()
		return w
	}

	w := worker.NewWorkerWithHandlers[T](tun, errorHandler, receiptHandler)
	tun.worker = w
	tun.tunnelLock.Unlock()

	w.Start()
	return w
}

// Worker returns the attached Worker, nil when none is attached.
func (tun *Tunnel[T]) Worker() *worker.Worker[T] {
	tun.tunnelLock.RLock()
	defer tun.tunnelLock.RUnlock()

	return tun.worker
}

// Dispose detaches and disposes the Worker. Stored snapshots stay in the tunnel. Idempotent.
func (tun *Tunnel[T]) Dispose() {
	tun.tunnelLock.Lock()
	w := tun.worker
	tun.worker = nil
	tun.tunnelLock.Unlock()

	if w != nil {
		w.Dispose()
	}
}

// Close disposes the Worker and waits for its loop to exit. Must not be called from a transform or callback.
func (tun *Tunnel[T]) Close() {
	tun.tunnelLock.Lock()
	w := tun.worker
	tun.worker = nil
	tun.tunnelLock.Unlock()

	if w != nil {
		w.Dispose()
		w.Wait()
	}
}

func (tun *Tunnel[T]) signal() {
	if w := tun.Worker(); w != nil {
		w.Signal()
	}
}
