package topology

import (
	"github.com/houseofcat/pistol/models"
	"github.com/houseofcat/pistol/queue"
	"github.com/houseofcat/pistol/tunnel"
)

// Topologer allows you to build tunnels from config, backed by a Queue and a Registry.
type Topologer[T any] struct {
	queue    *queue.Queue[T]
	registry *Registry[T]
}

// NewTopologer builds you a new Topologer.
func NewTopologer[T any](q *queue.Queue[T], registry *Registry[T]) *Topologer[T] {

	if registry == nil {
		registry = NewRegistry[T]()
	}

	return &Topologer[T]{
		queue:    q,
		registry: registry,
	}
}

// Registry returns the function registry tunnel configs are resolved against.
func (top *Topologer[T]) Registry() *Registry[T] {
	return top.registry
}

// BuildTopology builds a topology based on a TopologyConfig - stops on first error.
func (top *Topologer[T]) BuildTopology(config *models.TopologyConfig, ignoreErrors bool) error {
	if config == nil {
		return nil
	}

	return top.BuildTunnels(config.Tunnels, ignoreErrors)
}

// BuildTunnels loops through and builds Tunnels in config order - stops on first error.
// Conditional tunnels are matched in the order they are built.
func (top *Topologer[T]) BuildTunnels(tunnels []*models.TunnelConfig, ignoreErrors bool) error {
	if len(tunnels) == 0 {
		return nil
	}

	for _, tunnelConfig := range tunnels {
		_, err := top.CreateTunnelFromConfig(tunnelConfig)
		if err != nil && !ignoreErrors {
			return err
		}
	}

	return nil
}

// CreateTunnelFromConfig resolves the named functions and registers the tunnel on the Queue.
func (top *Topologer[T]) CreateTunnelFromConfig(tunnelConfig *models.TunnelConfig) (*tunnel.Tunnel[T], error) {

	transform, err := top.registry.Transform(tunnelConfig.Transform)
	if err != nil {
		return nil, err
	}

	preTransform, err := top.registry.PreTransform(tunnelConfig.PreTransform)
	if err != nil {
		return nil, err
	}

	tunnelID := tunnelConfig.TunnelID
	if tunnelID == "" {
		tunnelID = top.queue.NewTunnelID()
	}

	if tunnelConfig.Matcher == "" {
		return top.queue.CreateTunnel(tunnelID, transform, preTransform, tunnelConfig.WithWorker)
	}

	match, err := top.registry.Matcher(tunnelConfig.Matcher)
	if err != nil {
		return nil, err
	}

	return top.queue.CreateConditionalTunnelWithID(tunnelID, match, transform, preTransform, tunnelConfig.WithWorker)
}

// RemoveTunnels loops through and removes Tunnels - stops on first error.
func (top *Topologer[T]) RemoveTunnels(tunnelIDs []string, ignoreErrors bool) error {

	for _, tunnelID := range tunnelIDs {
		err := top.queue.RemoveTunnel(tunnelID)
		if err != nil && !ignoreErrors {
			return err
		}
	}

	return nil
}
