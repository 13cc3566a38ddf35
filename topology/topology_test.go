package topology_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofcat/pistol/models"
	"github.com/houseofcat/pistol/queue"
	"github.com/houseofcat/pistol/topology"
)

type ticket struct {
	Queue string `json:"queue"`
	Title string `json:"title"`
}

func echo(ctx context.Context, rom *models.ReadOnlyMessage[*ticket]) (*models.ReadOnlyMessage[*ticket], error) {
	return rom, nil
}

func noopCallback(*models.ReadOnlyMessage[*ticket]) error { return nil }

func newRegistry() *topology.Registry[*ticket] {
	registry := topology.NewRegistry[*ticket]()
	registry.RegisterTransform("echo", echo)
	registry.RegisterPreTransform("title", func(rom *models.ReadOnlyMessage[*ticket]) (*models.ReadOnlyMessage[*ticket], error) {
		data, err := rom.Data()
		if err != nil {
			return nil, err
		}
		data.Title = "[" + data.Queue + "] " + data.Title
		return rom.WithData(data)
	})
	registry.RegisterMatcher("support", func(rom *models.ReadOnlyMessage[*ticket]) bool {
		data, err := rom.Data()
		return err == nil && data.Queue == "support"
	})
	return registry
}

func TestRegistryLookups(t *testing.T) {
	registry := newRegistry()

	transform, err := registry.Transform("echo")
	require.NoError(t, err)
	assert.NotNil(t, transform)

	_, err = registry.Transform("missing")
	assert.ErrorIs(t, err, models.ErrFunctionNotRegistered)

	preTransform, err := registry.PreTransform("")
	assert.NoError(t, err)
	assert.Nil(t, preTransform)

	_, err = registry.PreTransform("missing")
	assert.ErrorIs(t, err, models.ErrFunctionNotRegistered)

	match, err := registry.Matcher("support")
	require.NoError(t, err)
	assert.NotNil(t, match)

	_, err = registry.Matcher("")
	assert.ErrorIs(t, err, models.ErrFunctionNotRegistered)
}

func TestBuildTopology(t *testing.T) {
	q, err := queue.NewQueue[*ticket](nil, nil)
	require.NoError(t, err)

	top := topology.NewTopologer(q, newRegistry())

	config := &models.TopologyConfig{
		Tunnels: []*models.TunnelConfig{
			{TunnelID: "tickets", Transform: "echo", PreTransform: "title"},
			{TunnelID: "support", Transform: "echo", Matcher: "support"},
			{Transform: "echo", Matcher: "support"},
		},
	}

	require.NoError(t, top.BuildTopology(config, false))
	assert.Equal(t, 3, q.TunnelCount())

	support, ok := q.GetTunnel("support")
	require.True(t, ok)
	assert.True(t, support.IsConditional())

	msg, err := models.NewMessage(&ticket{Queue: "support", Title: "printer"}, noopCallback, 1)
	require.NoError(t, err)

	routed, err := q.OfferRouted(msg)
	require.NoError(t, err)
	assert.Equal(t, "support", routed.TunnelID())

	added, err := q.OfferForID(msg, "tickets")
	require.NoError(t, err)

	data, err := added.Data()
	require.NoError(t, err)
	assert.Equal(t, "[support] printer", data.Title)
}

func TestBuildTopologyErrors(t *testing.T) {
	q, err := queue.NewQueue[*ticket](nil, nil)
	require.NoError(t, err)

	top := topology.NewTopologer(q, newRegistry())
	assert.NoError(t, top.BuildTopology(nil, false))

	config := &models.TopologyConfig{
		Tunnels: []*models.TunnelConfig{
			{TunnelID: "a", Transform: "missing"},
			{TunnelID: "b", Transform: "echo", Matcher: "missing"},
			{TunnelID: "c", Transform: "echo"},
			{TunnelID: "c", Transform: "echo"},
		},
	}

	err = top.BuildTopology(config, false)
	assert.ErrorIs(t, err, models.ErrFunctionNotRegistered)
	assert.Equal(t, 0, q.TunnelCount())

	assert.NoError(t, top.BuildTopology(config, true))
	assert.Equal(t, []string{"c"}, q.TunnelIDs())
}

func TestRemoveTunnels(t *testing.T) {
	q, err := queue.NewQueue[*ticket](nil, nil)
	require.NoError(t, err)

	top := topology.NewTopologer(q, nil)
	top.Registry().RegisterTransform("echo", echo)

	require.NoError(t, top.BuildTunnels([]*models.TunnelConfig{
		{TunnelID: "a", Transform: "echo"},
		{TunnelID: "b", Transform: "echo"},
	}, false))

	assert.ErrorIs(t, top.RemoveTunnels([]string{"a", "missing", "b"}, false), models.ErrTunnelNotFound)
	assert.Equal(t, []string{"b"}, q.TunnelIDs())

	assert.NoError(t, top.RemoveTunnels([]string{"missing", "b"}, true))
	assert.Equal(t, 0, q.TunnelCount())
}
