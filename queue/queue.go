package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/houseofcat/pistol/models"
	"github.com/houseofcat/pistol/tunnel"
	"github.com/houseofcat/pistol/utils"
)

// Queue is the tunnel registry. It routes messages to plain tunnels by id and to
// conditional tunnels by content, first match in registration order.
type Queue[T any] struct {
	Config              *models.QueueConfig
	tunnels             cmap.ConcurrentMap[string, *tunnel.Tunnel[T]]
	conditionalTunnels  cmap.ConcurrentMap[string, *tunnel.Tunnel[T]]
	conditionalOrder    []string
	autoCreateTransform models.TransformFunc[T]
	generateID          models.IDGenerator
	errorHandler        func(error)
	receiptHandler      func(*models.ProcessReceipt)
	queueLock           *sync.RWMutex
}

// NewQueue creates a new Queue. The transform is bound to auto-created tunnels and is
// required when the config enables AutoCreateTunnels.
func NewQueue[T any](config *models.QueueConfig, autoCreateTransform models.TransformFunc[T]) (*Queue[T], error) {
	return NewQueueWithHandlers(config, autoCreateTransform, nil, nil, nil)
}

// NewQueueWithHandlers creates a new Queue with an injected id generator and the handlers
// handed to every tunnel worker. A nil generateID falls back to the generator named in the config.
func NewQueueWithHandlers[T any](
	config *models.QueueConfig,
	autoCreateTransform models.TransformFunc[T],
	generateID models.IDGenerator,
	errorHandler func(error),
	receiptHandler func(*models.ProcessReceipt)) (*Queue[T], error) {

	if config == nil {
		config = &models.QueueConfig{}
	}

	if config.AutoCreateTunnels && autoCreateTransform == nil {
		return nil, models.ErrMissingAutoCreateTransform
	}

	if generateID == nil {
		generator, err := utils.GeneratorByName(config.IDGenerator)
		if err != nil {
			return nil, err
		}
		generateID = generator
	}

	return &Queue[T]{
		Config:              config,
		tunnels:             cmap.New[*tunnel.Tunnel[T]](),
		conditionalTunnels:  cmap.New[*tunnel.Tunnel[T]](),
		conditionalOrder:    make([]string, 0),
		autoCreateTransform: autoCreateTransform,
		generateID:          generateID,
		errorHandler:        errorHandler,
		receiptHandler:      receiptHandler,
		queueLock:           &sync.RWMutex{},
	}, nil
}

// CreateTunnel creates and registers a plain tunnel.
func (q *Queue[T]) CreateTunnel(
	tunnelID string,
	transform models.TransformFunc[T],
	preTransform models.PreTransformFunc[T],
	withWorker bool) (*tunnel.Tunnel[T], error) {

	tun, err := tunnel.NewTunnel(tunnelID, transform, preTransform)
	if err != nil {
		return nil, err
	}

	if err = q.register(tun, withWorker); err != nil {
		return nil, err
	}

	return tun, nil
}

// NewTunnelID returns a fresh id from the Queue's id generator.
func (q *Queue[T]) NewTunnelID() string {
	return q.generateID()
}

// CreateTunnelWithGeneratedID creates and registers a plain tunnel with a fresh id.
func (q *Queue[T]) CreateTunnelWithGeneratedID(transform models.TransformFunc[T], withWorker bool) (*tunnel.Tunnel[T], error) {
	return q.CreateTunnel(q.generateID(), transform, nil, withWorker)
}

// CreateConditionalTunnel creates and registers a conditional tunnel with a fresh id.
// It is consulted by OfferRouted after every conditional tunnel registered before it.
func (q *Queue[T]) CreateConditionalTunnel(
	match models.MatchFunc[T],
	transform models.TransformFunc[T],
	preTransform models.PreTransformFunc[T],
	withWorker bool) (*tunnel.Tunnel[T], error) {

	return q.CreateConditionalTunnelWithID(q.generateID(), match, transform, preTransform, withWorker)
}

// CreateConditionalTunnelWithID creates and registers a conditional tunnel under a caller supplied id.
func (q *Queue[T]) CreateConditionalTunnelWithID(
	tunnelID string,
	match models.MatchFunc[T],
	transform models.TransformFunc[T],
	preTransform models.PreTransformFunc[T],
	withWorker bool) (*tunnel.Tunnel[T], error) {

	tun, err := tunnel.NewConditionalTunnel(tunnelID, match, transform, preTransform)
	if err != nil {
		return nil, err
	}

	if err = q.register(tun, withWorker); err != nil {
		return nil, err
	}

	return tun, nil
}

func (q *Queue[T]) register(tun *tunnel.Tunnel[T], withWorker bool) error {
	q.queueLock.Lock()
	defer q.queueLock.Unlock()

	if q.tunnels.Has(tun.ID()) || q.conditionalTunnels.Has(tun.ID()) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateTunnel, tun.ID())
	}

	if tun.IsConditional() {
		q.conditionalTunnels.Set(tun.ID(), tun)
		q.conditionalOrder = append(q.conditionalOrder, tun.ID())
	} else {
		q.tunnels.Set(tun.ID(), tun)
	}

	if withWorker {
		tun.StartWorker(q.errorHandler, q.receiptHandler)
	}

	return nil
}

// RemoveTunnel disposes the tunnel's worker and unregisters it. Stored messages are dropped with the tunnel.
func (q *Queue[T]) RemoveTunnel(tunnelID string) error {
	q.queueLock.Lock()
	defer q.queueLock.Unlock()

	if tun, ok := q.tunnels.Get(tunnelID); ok {
		tun.Dispose()
		q.tunnels.Remove(tunnelID)
		return nil
	}

	if tun, ok := q.conditionalTunnels.Get(tunnelID); ok {
		tun.Dispose()
		q.conditionalTunnels.Remove(tunnelID)

		for i, id := range q.conditionalOrder {
			if id == tunnelID {
				q.conditionalOrder = append(q.conditionalOrder[:i:i], q.conditionalOrder[i+1:]...)
				break
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %s", models.ErrTunnelNotFound, tunnelID)
}

// Offer adds the message to a registered tunnel. The tunnel is matched by identity, not by id.
func (q *Queue[T]) Offer(message *models.Message[T], tun *tunnel.Tunnel[T]) (*models.ReadOnlyMessage[T], error) {
	if !q.ContainsTunnel(tun) {
		if tun == nil {
			return nil, models.ErrTunnelNotFound
		}
		return nil, fmt.Errorf("%w: %s", models.ErrTunnelNotFound, tun.ID())
	}

	return tun.Add(message)
}

// OfferForID adds the message to the tunnel registered under the id, creating a plain tunnel
// with the auto-create transform first when the config allows it.
func (q *Queue[T]) OfferForID(message *models.Message[T], tunnelID string) (*models.ReadOnlyMessage[T], error) {

	tun, ok := q.GetTunnel(tunnelID)
	if !ok {
		if !q.Config.AutoCreateTunnels {
			return nil, fmt.Errorf("%w: %s", models.ErrTunnelNotFound, tunnelID)
		}

		var err error
		tun, err = q.CreateTunnel(tunnelID, q.autoCreateTransform, nil, q.Config.AutoCreateWithWorker)
		if err != nil {
			if !errors.Is(err, models.ErrDuplicateTunnel) {
				return nil, err
			}

			// Lost the race to another auto-create.
			if tun, ok = q.GetTunnel(tunnelID); !ok {
				return nil, fmt.Errorf("%w: %s", models.ErrTunnelNotFound, tunnelID)
			}
		}
	}

	return tun.Add(message)
}

// OfferRouted adds the message to the first conditional tunnel, in registration order, whose matcher accepts it.
func (q *Queue[T]) OfferRouted(message *models.Message[T]) (*models.ReadOnlyMessage[T], error) {

	if message == nil {
		return nil, models.ErrUndefinedMessage
	}

	if !message.HasRequiredProperties() {
		return nil, models.ErrMissingRequiredProperty
	}

	snapshot, err := message.Snapshot()
	if err != nil {
		return nil, err
	}

	q.queueLock.RLock()
	order := make([]string, len(q.conditionalOrder))
	copy(order, q.conditionalOrder)
	q.queueLock.RUnlock()

	for _, tunnelID := range order {
		tun, ok := q.conditionalTunnels.Get(tunnelID)
		if !ok {
			continue
		}

		if tun.Match(snapshot) {
			return tun.Add(message)
		}
	}

	return nil, models.ErrNoMatchingTunnel
}

// Poll removes and returns the oldest message of the tunnel registered under the id.
func (q *Queue[T]) Poll(tunnelID string) (*models.ReadOnlyMessage[T], error) {
	tun, ok := q.GetTunnel(tunnelID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTunnelNotFound, tunnelID)
	}

	return tun.Poll()
}

// GetTunnel looks the id up across plain and conditional tunnels.
func (q *Queue[T]) GetTunnel(tunnelID string) (*tunnel.Tunnel[T], bool) {
	if tun, ok := q.tunnels.Get(tunnelID); ok {
		return tun, true
	}

	return q.conditionalTunnels.Get(tunnelID)
}

// ContainsTunnel reports whether this exact tunnel is registered.
func (q *Queue[T]) ContainsTunnel(tun *tunnel.Tunnel[T]) bool {
	if tun == nil {
		return false
	}

	registered, ok := q.GetTunnel(tun.ID())
	return ok && registered == tun
}

// ContainsTunnelWithID reports whether any tunnel is registered under the id.
func (q *Queue[T]) ContainsTunnelWithID(tunnelID string) bool {
	return q.tunnels.Has(tunnelID) || q.conditionalTunnels.Has(tunnelID)
}

// TunnelIDs returns the sorted plain tunnel ids followed by the conditional ids in registration order.
func (q *Queue[T]) TunnelIDs() []string {
	q.queueLock.RLock()
	defer q.queueLock.RUnlock()

	ids := q.tunnels.Keys()
	sort.Strings(ids)

	return append(ids, q.conditionalOrder...)
}

// TunnelCount returns the number of registered tunnels.
func (q *Queue[T]) TunnelCount() int {
	return q.tunnels.Count() + q.conditionalTunnels.Count()
}

// Shutdown stops every tunnel worker and waits for them. Tunnels stay registered.
// Must not be called from a transform or callback.
func (q *Queue[T]) Shutdown() {
	q.queueLock.RLock()
	tunnels := make([]*tunnel.Tunnel[T], 0, q.TunnelCount())
	for item := range q.tunnels.IterBuffered() {
		tunnels = append(tunnels, item.Val)
	}
	for item := range q.conditionalTunnels.IterBuffered() {
		tunnels = append(tunnels, item.Val)
	}
	q.queueLock.RUnlock()

	for _, tun := range tunnels {
		tun.Close()
	}
}
