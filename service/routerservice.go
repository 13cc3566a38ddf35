package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/houseofcat/pistol/metrics"
	"github.com/houseofcat/pistol/models"
	"github.com/houseofcat/pistol/publisher"
	"github.com/houseofcat/pistol/queue"
	"github.com/houseofcat/pistol/topology"
	"github.com/houseofcat/pistol/utils"
)

const defaultErrorBuffer = 1000

// RouterService is the struct for containing all you need for in-process routing.
type RouterService[T any] struct {
	Config    *models.Seasoning
	Queue     *queue.Queue[T]
	Publisher *publisher.Publisher[T]
	Topologer *topology.Topologer[T]
	Factory   *models.Factory[T]
	Metrics   *metrics.RouterMetrics

	logger *slog.Logger

	shutdownSignal chan struct{}
	centralErr     chan error
	wg             sync.WaitGroup
	once           sync.Once
}

// NewRouterService creates everything you need for a routing service, logging JSON to stdout and
// registering metrics with the prometheus default registerer.
func NewRouterService[T any](
	config *models.Seasoning,
	registry *topology.Registry[T],
	processPublishReceipts func(*models.PublishReceipt[T]),
	processError func(error)) (*RouterService[T], error) {

	return NewRouterServiceWithLogger(config, registry, nil, nil, processPublishReceipts, processError)
}

// NewRouterServiceWithLogger creates everything you need for a routing service with your own logger and registerer.
func NewRouterServiceWithLogger[T any](
	config *models.Seasoning,
	registry *topology.Registry[T],
	logger *slog.Logger,
	registerer prometheus.Registerer,
	processPublishReceipts func(*models.PublishReceipt[T]),
	processError func(error)) (*RouterService[T], error) {

	config = withDefaults(config)

	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(config.ServiceConfig.LogLevel)}))
	}

	if registry == nil {
		registry = topology.NewRegistry[T]()
	}

	generateID, err := utils.GeneratorByName(config.QueueConfig.IDGenerator)
	if err != nil {
		return nil, err
	}

	factory := models.NewFactory[T](generateID, nil)
	if config.QueueConfig.MinPriority != 0 {
		factory.MinPriority = config.QueueConfig.MinPriority
	}
	if config.QueueConfig.MaxPriority != 0 {
		factory.MaxPriority = config.QueueConfig.MaxPriority
	}

	var autoCreateTransform models.TransformFunc[T]
	if config.QueueConfig.AutoCreateTransform != "" {
		autoCreateTransform, err = registry.Transform(config.QueueConfig.AutoCreateTransform)
		if err != nil {
			return nil, fmt.Errorf("auto create transform: %w", err)
		}
	}

	errorBuffer := config.ServiceConfig.ErrorBuffer
	if errorBuffer == 0 {
		errorBuffer = defaultErrorBuffer
	}

	rs := &RouterService[T]{
		Config:         config,
		Factory:        factory,
		logger:         logger,
		shutdownSignal: make(chan struct{}),
		centralErr:     make(chan error, errorBuffer),
	}

	if config.ServiceConfig.EnableMetrics {
		rs.Metrics = metrics.NewRouterMetrics(config.ServiceConfig.MetricsNamespace, registerer)
		if err = rs.Metrics.Register(); err != nil {
			return nil, err
		}
	}

	rs.Queue, err = queue.NewQueueWithHandlers(
		config.QueueConfig,
		autoCreateTransform,
		generateID,
		rs.handleWorkerError,
		rs.handleProcessReceipt)
	if err != nil {
		return nil, err
	}

	rs.Topologer = topology.NewTopologer(rs.Queue, registry)
	if err = rs.Topologer.BuildTopology(config.TopologyConfig, false); err != nil {
		rs.Queue.Shutdown()
		return nil, err
	}
	rs.refreshTunnelCount()

	rs.Publisher = publisher.NewPublisher(config.PublisherConfig, rs.Queue)

	// Monitors all publish events
	rs.wg.Add(2)
	if processPublishReceipts != nil {
		go rs.invokeProcessPublishReceipts(processPublishReceipts)
	} else { // Default action is to retry publishing all failures.
		go rs.processPublishReceipts()
	}

	// Monitors all errors
	if processError != nil {
		go rs.invokeProcessError(processError)
	} else {
		go rs.processErrors()
	}

	// Start the AutoPublisher
	rs.Publisher.StartAutoPublishing()

	rs.logger.Info("router service started", slog.Int("tunnels", rs.Queue.TunnelCount()))

	return rs, nil
}

func withDefaults(config *models.Seasoning) *models.Seasoning {
	if config == nil {
		config = &models.Seasoning{}
	}

	if config.QueueConfig == nil {
		config.QueueConfig = &models.QueueConfig{}
	}

	if config.PublisherConfig == nil {
		config.PublisherConfig = &models.PublisherConfig{}
	}

	if config.ServiceConfig == nil {
		config.ServiceConfig = &models.ServiceConfig{}
	}

	if config.TopologyConfig == nil {
		config.TopologyConfig = &models.TopologyConfig{}
	}

	return config
}

// ParseLogLevel maps debug, info, warn and error to a slog.Level. Anything else is info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewMessage builds a Message with the service's id generator and priority range.
func (rs *RouterService[T]) NewMessage(data T, callback models.CallbackFunc[T], priority int) (*models.Message[T], error) {
	return rs.Factory.NewMessage(data, callback, priority)
}

// Publish builds a message and offers it to the tunnel id, or routes it by content when tunnelID is empty.
// Failures show up on the PublishReceipts and are retried up to MaxRetryCount.
func (rs *RouterService[T]) Publish(tunnelID string, data T, callback models.CallbackFunc[T], priority int) (*models.Message[T], error) {

	if rs.isShutdown() {
		return nil, fmt.Errorf("unable to publish: %w", models.ErrServiceShutdown)
	}

	message, err := rs.NewMessage(data, callback, priority)
	if err != nil {
		return nil, err
	}

	return message, rs.PublishLetter(models.NewLetter(tunnelID, message, 0))
}

// PublishLetter wraps around Publisher to simply Publish.
func (rs *RouterService[T]) PublishLetter(letter *models.Letter[T]) error {

	if rs.isShutdown() {
		return fmt.Errorf("unable to publish: %w", models.ErrServiceShutdown)
	}

	if letter == nil || letter.Message == nil {
		return models.ErrUndefinedMessage
	}

	if letter.LetterID == "" {
		letter.LetterID = utils.UUIDGenerator()
	}

	rs.Publisher.Publish(letter, false)
	return nil
}

// QueueLetter wraps around AutoPublisher to simply QueueLetter.
// Error indicates message was not queued.
func (rs *RouterService[T]) QueueLetter(letter *models.Letter[T]) error {

	if rs.isShutdown() {
		return fmt.Errorf("unable to queue letter: %w", models.ErrServiceShutdown)
	}

	if letter == nil || letter.Message == nil {
		return models.ErrUndefinedMessage
	}

	if letter.LetterID == "" {
		letter.LetterID = utils.UUIDGenerator()
	}

	if ok := rs.Publisher.QueueLetter(letter); !ok {
		return errors.New("unable to queue letter... most likely cause is autopublisher chan was shut")
	}

	return nil
}

// CentralErr yields all the internal errs for sub-processes.
func (rs *RouterService[T]) CentralErr() <-chan error {
	return rs.centralErr
}

// Shutdown stops the publisher, the background monitors and every tunnel worker.
// Must not be called from a transform or callback.
func (rs *RouterService[T]) Shutdown() {
	rs.once.Do(func() {
		close(rs.shutdownSignal)

		rs.Publisher.Close()
		rs.wg.Wait()
		rs.Queue.Shutdown()

		rs.logger.Info("router service stopped")
	})
}

func (rs *RouterService[T]) handleWorkerError(err error) {

	var processingErr *models.ProcessingError
	if errors.As(err, &processingErr) {
		rs.logger.Debug("message processing failed",
			slog.String("tunnel_id", processingErr.TunnelID),
			slog.String("message_id", processingErr.MessageID),
			slog.Any("error", processingErr.Err))
	}

	rs.sendError(err)
}

func (rs *RouterService[T]) handleProcessReceipt(receipt *models.ProcessReceipt) {
	if rs.Metrics != nil {
		rs.Metrics.RecordProcessReceipt(receipt)
	}
}

func (rs *RouterService[T]) recordPublishReceipt(receipt *models.PublishReceipt[T]) {
	if rs.Metrics != nil {
		rs.Metrics.RecordOffer(receipt.TunnelID, receipt.Error)
	}
	rs.refreshTunnelCount()
}

func (rs *RouterService[T]) refreshTunnelCount() {
	if rs.Metrics != nil {
		rs.Metrics.SetTunnelCount(rs.Queue.TunnelCount())
	}
}

func (rs *RouterService[T]) sendError(err error) {
	if rs.Metrics != nil {
		rs.Metrics.RecordError()
	}

	select {
	case <-rs.catchShutdown():
		rs.logger.Warn("error dropped during shutdown", slog.Any("error", err))
	case rs.centralErr <- err:
	}
}

func (rs *RouterService[T]) invokeProcessPublishReceipts(processReceipts func(*models.PublishReceipt[T])) {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.catchShutdown():
			return // Prevent leaking goroutine
		case receipt, ok := <-rs.Publisher.PublishReceipts():
			if !ok {
				return
			}

			rs.recordPublishReceipt(receipt)
			processReceipts(receipt)
		}
	}
}

func (rs *RouterService[T]) processPublishReceipts() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.catchShutdown():
			return // Prevent leaking goroutine
		case receipt, ok := <-rs.Publisher.PublishReceipts():
			if !ok {
				return
			}

			rs.recordPublishReceipt(receipt)
			if receipt.Success {
				continue
			}

			rs.retry(receipt)
		}
	}
}

func (rs *RouterService[T]) retry(receipt *models.PublishReceipt[T]) {

	if receipt.FailedLetter == nil {
		rs.sendError(fmt.Errorf("failed to publish a LetterID %s and unable to retry as a copy of the letter was not received", receipt.LetterID))
		return
	}

	if receipt.FailedLetter.RetryCount >= rs.Config.PublisherConfig.MaxRetryCount {
		rs.sendError(fmt.Errorf("failed to retry publish a LetterID %s, it has exhausted all of it's retries: %w", receipt.LetterID, receipt.Error))
		return
	}

	receipt.FailedLetter.RetryCount++
	rs.logger.Debug("retrying letter",
		slog.String("letter_id", receipt.LetterID),
		slog.String("tunnel_id", receipt.FailedLetter.TunnelID),
		slog.Uint64("retry_count", uint64(receipt.FailedLetter.RetryCount)))

	if ok := rs.Publisher.QueueLetter(receipt.FailedLetter); !ok {
		rs.sendError(fmt.Errorf("failed to publish a LetterID %s and autopublisher has been shutdown", receipt.LetterID))
	}
}

func (rs *RouterService[T]) invokeProcessError(processError func(error)) {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.catchShutdown():
			return // prevent goroutine leak
		case err := <-rs.centralErr:
			processError(err)
		}
	}
}

func (rs *RouterService[T]) processErrors() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.catchShutdown():
			return // Prevent leaking goroutine
		case err := <-rs.centralErr:
			rs.logger.Error("router central error", slog.Any("error", err))
		}
	}
}

func (rs *RouterService[T]) isShutdown() bool {
	select {
	case <-rs.shutdownSignal:
		return true
	default:
		return false
	}
}

func (rs *RouterService[T]) catchShutdown() <-chan struct{} {
	return rs.shutdownSignal
}
