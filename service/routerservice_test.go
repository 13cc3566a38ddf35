package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofcat/pistol/models"
	"github.com/houseofcat/pistol/topology"
)

type order struct {
	Item   string `json:"item"`
	Status string `json:"status"`
	Alert  bool   `json:"alert"`
}

var Seasoning *models.Seasoning
var YAMLSeasoning *models.Seasoning

func TestMain(m *testing.M) { // Load Configuration On Startup
	var err error
	Seasoning, err = models.ConvertJSONFileToConfig("testseasoning.json")
	if err != nil {
		fmt.Print(err.Error())
		return
	}

	YAMLSeasoning, err = models.ConvertYAMLFileToConfig("testseasoning.yaml")
	if err != nil {
		fmt.Print(err.Error())
		return
	}

	os.Exit(m.Run())
}

func upper(ctx context.Context, rom *models.ReadOnlyMessage[*order]) (*models.ReadOnlyMessage[*order], error) {
	data, err := rom.Data()
	if err != nil {
		return nil, err
	}

	data.Status = strings.ToUpper(data.Status)
	return rom.WithData(data)
}

func newRegistry() *topology.Registry[*order] {
	registry := topology.NewRegistry[*order]()
	registry.RegisterTransform("upper", upper)
	registry.RegisterTransform("fail", func(ctx context.Context, rom *models.ReadOnlyMessage[*order]) (*models.ReadOnlyMessage[*order], error) {
		return nil, errors.New("out of stock")
	})
	registry.RegisterPreTransform("stamp", func(rom *models.ReadOnlyMessage[*order]) (*models.ReadOnlyMessage[*order], error) {
		data, err := rom.Data()
		if err != nil {
			return nil, err
		}

		data.Status = "received"
		return rom.WithData(data)
	})
	registry.RegisterMatcher("alert", func(rom *models.ReadOnlyMessage[*order]) bool {
		data, err := rom.Data()
		return err == nil && data.Alert
	})
	return registry
}

func newService(t *testing.T, config *models.Seasoning, processError func(error)) *RouterService[*order] {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rs, err := NewRouterServiceWithLogger(config, newRegistry(), logger, prometheus.NewRegistry(), nil, processError)
	require.NoError(t, err)
	return rs
}

func collectErrors() (chan error, func(error)) {
	errs := make(chan error, 100)
	return errs, func(err error) {
		select {
		case errs <- err:
		default:
		}
	}
}

func delivery() (chan *models.ReadOnlyMessage[*order], models.CallbackFunc[*order]) {
	delivered := make(chan *models.ReadOnlyMessage[*order], 10)
	return delivered, func(rom *models.ReadOnlyMessage[*order]) error {
		delivered <- rom
		return nil
	}
}

func awaitDelivery(t *testing.T, delivered chan *models.ReadOnlyMessage[*order]) *models.ReadOnlyMessage[*order] {
	select {
	case rom := <-delivered:
		return rom
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
		return nil
	}
}

func TestLoadConfigs(t *testing.T) {
	assert.True(t, Seasoning.QueueConfig.AutoCreateTunnels)
	assert.Equal(t, "upper", Seasoning.QueueConfig.AutoCreateTransform)
	assert.Equal(t, uint32(2), Seasoning.PublisherConfig.MaxRetryCount)
	assert.True(t, Seasoning.ServiceConfig.EnableMetrics)
	require.Len(t, Seasoning.TopologyConfig.Tunnels, 3)
	assert.Equal(t, "stamp", Seasoning.TopologyConfig.Tunnels[0].PreTransform)

	assert.False(t, YAMLSeasoning.QueueConfig.AutoCreateTunnels)
	assert.Equal(t, "warn", YAMLSeasoning.ServiceConfig.LogLevel)
	require.Len(t, YAMLSeasoning.TopologyConfig.Tunnels, 2)
	assert.Equal(t, "alert", YAMLSeasoning.TopologyConfig.Tunnels[1].Matcher)
	assert.True(t, YAMLSeasoning.TopologyConfig.Tunnels[1].WithWorker)
}

func TestNewRouterServiceBuildsTopology(t *testing.T) {
	defer leaktest.Check(t)()

	rs := newService(t, Seasoning, nil)
	defer rs.Shutdown()

	assert.Equal(t, []string{"Orders", "Parked", "Alerts"}, rs.Queue.TunnelIDs())
	assert.NotNil(t, rs.Metrics)

	alerts, ok := rs.Queue.GetTunnel("Alerts")
	require.True(t, ok)
	assert.True(t, alerts.IsConditional())
	assert.NotNil(t, alerts.Worker())

	parked, ok := rs.Queue.GetTunnel("Parked")
	require.True(t, ok)
	assert.Nil(t, parked.Worker())
}

func TestNewRouterServiceFromYAML(t *testing.T) {
	defer leaktest.Check(t)()

	rs := newService(t, YAMLSeasoning, nil)
	defer rs.Shutdown()

	assert.Nil(t, rs.Metrics)
	assert.Equal(t, 2, rs.Queue.TunnelCount())
	assert.True(t, rs.Queue.ContainsTunnelWithID("Orders"))
}

func TestNewRouterServiceUnknownFunction(t *testing.T) {
	config := &models.Seasoning{
		QueueConfig: &models.QueueConfig{AutoCreateTunnels: true, AutoCreateTransform: "missing"},
	}

	_, err := NewRouterServiceWithLogger(config, newRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry(), nil, nil)
	assert.ErrorIs(t, err, models.ErrFunctionNotRegistered)

	config = &models.Seasoning{
		TopologyConfig: &models.TopologyConfig{
			Tunnels: []*models.TunnelConfig{{TunnelID: "a", Transform: "missing", WithWorker: true}},
		},
	}

	_, err = NewRouterServiceWithLogger(config, newRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry(), nil, nil)
	assert.ErrorIs(t, err, models.ErrFunctionNotRegistered)

	rs, err := NewRouterServiceWithLogger[*order](nil, nil, nil, prometheus.NewRegistry(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Queue.TunnelCount())
	rs.Shutdown()
}

func TestPublishToTunnel(t *testing.T) {
	defer leaktest.Check(t)()

	rs := newService(t, Seasoning, nil)
	defer rs.Shutdown()

	delivered, callback := delivery()
	message, err := rs.Publish("Orders", &order{Item: "tea", Status: "new"}, callback, 5)
	require.NoError(t, err)

	rom := awaitDelivery(t, delivered)
	assert.Equal(t, message.MessageID(), rom.MessageID())
	assert.Equal(t, "Orders", rom.TunnelID())
	assert.Len(t, message.MessageID(), 26)

	data, err := rom.Data()
	require.NoError(t, err)
	assert.Equal(t, "RECEIVED", data.Status)
	assert.Equal(t, "tea", data.Item)
}

func TestPublishRouted(t *testing.T) {
	defer leaktest.Check(t)()

	rs := newService(t, Seasoning, nil)
	defer rs.Shutdown()

	delivered, callback := delivery()
	_, err := rs.Publish("", &order{Item: "smoke detector", Status: "beeping", Alert: true}, callback, 1)
	require.NoError(t, err)

	rom := awaitDelivery(t, delivered)
	assert.Equal(t, "Alerts", rom.TunnelID())

	data, err := rom.Data()
	require.NoError(t, err)
	assert.Equal(t, "BEEPING", data.Status)
}

func TestPublishAutoCreates(t *testing.T) {
	defer leaktest.Check(t)()

	rs := newService(t, Seasoning, nil)
	defer rs.Shutdown()

	delivered, callback := delivery()
	_, err := rs.Publish("Fresh", &order{Item: "bread", Status: "baked"}, callback, 1)
	require.NoError(t, err)

	rom := awaitDelivery(t, delivered)
	assert.Equal(t, "Fresh", rom.TunnelID())
	assert.True(t, rs.Queue.ContainsTunnelWithID("Fresh"))
}

func TestPublishRetriesUntilExhausted(t *testing.T) {
	defer leaktest.Check(t)()

	errs, processError := collectErrors()
	rs := newService(t, YAMLSeasoning, processError)
	defer rs.Shutdown()

	_, callback := delivery()
	_, err := rs.Publish("Missing", &order{Item: "ghost"}, callback, 1)
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, models.ErrTunnelNotFound)
		assert.Contains(t, err.Error(), "exhausted")
	case <-time.After(2 * time.Second):
		t.Fatal("retries were not exhausted")
	}
}

func TestPublishRetrySucceedsOnceTunnelExists(t *testing.T) {
	defer leaktest.Check(t)()

	config := &models.Seasoning{
		PublisherConfig: &models.PublisherConfig{MaxRetryCount: 100, SleepOnErrorInterval: 10},
	}

	rs := newService(t, config, nil)
	defer rs.Shutdown()

	delivered, callback := delivery()
	message, err := rs.NewMessage(&order{Item: "late"}, callback, 1)
	require.NoError(t, err)
	require.NoError(t, rs.QueueLetter(models.NewLetter("Late", message, 0)))

	time.Sleep(20 * time.Millisecond)
	_, err = rs.Topologer.CreateTunnelFromConfig(&models.TunnelConfig{TunnelID: "Late", Transform: "upper", WithWorker: true})
	require.NoError(t, err)

	rom := awaitDelivery(t, delivered)
	assert.Equal(t, message.MessageID(), rom.MessageID())
}

func TestPublishInvalidPriority(t *testing.T) {
	defer leaktest.Check(t)()

	rs := newService(t, Seasoning, nil)
	defer rs.Shutdown()

	_, callback := delivery()
	_, err := rs.Publish("Orders", &order{Item: "tea"}, callback, 11)
	assert.ErrorIs(t, err, models.ErrInvalidPriority)
	assert.ErrorIs(t, err, models.ErrInvalidMessageProperty)

	assert.ErrorIs(t, rs.PublishLetter(nil), models.ErrUndefinedMessage)
	assert.ErrorIs(t, rs.QueueLetter(&models.Letter[*order]{}), models.ErrUndefinedMessage)
}

func TestWorkerErrorsReachCentralErr(t *testing.T) {
	defer leaktest.Check(t)()

	errs, processError := collectErrors()
	rs := newService(t, Seasoning, processError)
	defer rs.Shutdown()

	_, err := rs.Topologer.CreateTunnelFromConfig(&models.TunnelConfig{TunnelID: "Broken", Transform: "fail", WithWorker: true})
	require.NoError(t, err)

	_, callback := delivery()
	message, err := rs.Publish("Broken", &order{Item: "widget"}, callback, 1)
	require.NoError(t, err)

	select {
	case err := <-errs:
		var processingErr *models.ProcessingError
		require.True(t, errors.As(err, &processingErr))
		assert.Equal(t, "Broken", processingErr.TunnelID)
		assert.Equal(t, message.MessageID(), processingErr.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("processing error did not reach the central error handler")
	}
}

func TestShutdown(t *testing.T) {
	defer leaktest.Check(t)()

	rs := newService(t, Seasoning, nil)
	rs.Shutdown()
	rs.Shutdown()

	_, callback := delivery()
	_, err := rs.Publish("Orders", &order{Item: "tea"}, callback, 1)
	assert.ErrorIs(t, err, models.ErrServiceShutdown)

	message, err := rs.NewMessage(&order{Item: "tea"}, callback, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, rs.PublishLetter(models.NewLetter("Orders", message, 0)), models.ErrServiceShutdown)
	assert.ErrorIs(t, rs.QueueLetter(models.NewLetter("Orders", message, 0)), models.ErrServiceShutdown)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel(""))
}
