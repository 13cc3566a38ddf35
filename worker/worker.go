package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/houseofcat/pistol/models"
)

// Source is what a Worker drains. Tunnels satisfy it.
type Source[T any] interface {
	Poll() (*models.ReadOnlyMessage[T], error)
	Transform() models.TransformFunc[T]
	IsEmpty() bool
}

// Worker processes the messages of a single Source one at a time.
// At most one transform+callback is in flight per Worker.
type Worker[T any] struct {
	source Source[T]

	busy     int32
	running  int32
	started  int32
	disposed int32

	ctx    context.Context
	cancel context.CancelFunc

	workerLock *sync.Mutex
	wg         *sync.WaitGroup
	once       *sync.Once

	errorHandler   func(error)
	receiptHandler func(*models.ProcessReceipt)
}

// NewWorker creates a new Worker for a Source.
func NewWorker[T any](source Source[T]) *Worker[T] {
	return NewWorkerWithHandlers(source, nil, nil)
}

// NewWorkerWithHandlers creates a new Worker with an error and/or receipt handler.
// The error handler receives failures of the self-continuing loop, the receipt handler
// is invoked for every processed message.
func NewWorkerWithHandlers[T any](
	source Source[T],
	errorHandler func(error),
	receiptHandler func(*models.ProcessReceipt)) *Worker[T] {

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker[T]{
		source:         source,
		ctx:            ctx,
		cancel:         cancel,
		workerLock:     &sync.Mutex{},
		wg:             &sync.WaitGroup{},
		once:           &sync.Once{},
		errorHandler:   errorHandler,
		receiptHandler: receiptHandler,
	}
}

// ProcessNext polls the oldest message, applies the source's transform and invokes the message's callback
// with the result. Fails immediately with ErrCurrentlyProcessing when another call is in flight.
// Transform and callback failures (panics included) are returned as a *models.ProcessingError.
func (w *Worker[T]) ProcessNext(ctx context.Context) (*models.ReadOnlyMessage[T], error) {

	if w.isDisposed() {
		return nil, models.ErrWorkerDisposed
	}

	if !atomic.CompareAndSwapInt32(&w.busy, 0, 1) {
		return nil, models.ErrCurrentlyProcessing
	}
	defer w.release()

	transform := w.source.Transform()
	if transform == nil {
		return nil, models.ErrTransformNotBound
	}

	message, err := w.source.Poll()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := w.process(ctx, transform, message)
	w.publishReceipt(message, err, time.Since(start))

	return result, err
}

func (w *Worker[T]) process(
	ctx context.Context,
	transform models.TransformFunc[T],
	message *models.ReadOnlyMessage[T]) (result *models.ReadOnlyMessage[T], err error) {

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = models.NewProcessingError(message.MessageID(), message.TunnelID(), fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = transform(ctx, message)
	if err != nil {
		return nil, models.NewProcessingError(message.MessageID(), message.TunnelID(), err)
	}

	if result == nil {
		return nil, models.NewProcessingError(message.MessageID(), message.TunnelID(), models.ErrUndefinedMessage)
	}

	if callback := message.Callback(); callback != nil {
		if err = callback(result); err != nil {
			return nil, models.NewProcessingError(message.MessageID(), message.TunnelID(), err)
		}
	}

	return result, nil
}

func (w *Worker[T]) release() {
	atomic.StoreInt32(&w.busy, 0)
	w.Signal()
}

// Start enables self-continuation: from now on every Signal drains the source in the background.
func (w *Worker[T]) Start() {
	atomic.StoreInt32(&w.started, 1)
	w.Signal()
}

// Signal asks a started Worker to drain its source. No-op while the loop is already running.
func (w *Worker[T]) Signal() {

	if atomic.LoadInt32(&w.started) == 0 {
		return
	}

	w.workerLock.Lock()
	defer w.workerLock.Unlock()

	if !w.pending() {
		return
	}

	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return
	}

	w.wg.Add(1)
	go w.run()
}

func (w *Worker[T]) run() {
	defer w.wg.Done()

	for {
		w.drain()
		atomic.StoreInt32(&w.running, 0)

		// Whoever filled the source, bound a transform or released the guard
		// while drain was finishing saw the loop as running and skipped its Signal.
		if !w.pending() {
			return
		}

		if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
			return
		}
	}
}

// drain processes until the source is empty or the Worker can no longer make progress.
func (w *Worker[T]) drain() {

	for {
		if w.ctx.Err() != nil {
			return
		}

		_, err := w.ProcessNext(w.ctx)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrEmptyTunnel),
			errors.Is(err, models.ErrCurrentlyProcessing),
			errors.Is(err, models.ErrWorkerDisposed):
			return
		case errors.Is(err, models.ErrTransformNotBound):
			w.handleError(err)
			return
		default:
			w.handleError(err)
		}
	}
}

func (w *Worker[T]) pending() bool {
	return !w.isDisposed() &&
		atomic.LoadInt32(&w.busy) == 0 &&
		w.source.Transform() != nil &&
		!w.source.IsEmpty()
}

// Busy reports whether a message is being processed right now.
func (w *Worker[T]) Busy() bool {
	return atomic.LoadInt32(&w.busy) != 0
}

// Started reports whether self-continuation is enabled.
func (w *Worker[T]) Started() bool {
	return atomic.LoadInt32(&w.started) != 0
}

// Dispose stops the Worker and cancels the context handed to an in-flight transform. Idempotent.
// Dispose does not block, use Wait to wait for the background loop to exit.
func (w *Worker[T]) Dispose() {
	w.once.Do(func() {
		w.workerLock.Lock()
		atomic.StoreInt32(&w.disposed, 1)
		w.workerLock.Unlock()

		w.cancel()
	})
}

// Wait blocks until the background loop has exited. Must not be called from a transform or callback.
func (w *Worker[T]) Wait() {
	w.wg.Wait()
}

func (w *Worker[T]) isDisposed() bool {
	return atomic.LoadInt32(&w.disposed) != 0
}

func (w *Worker[T]) handleError(err error) {
	if w.errorHandler != nil {
		w.errorHandler(err)
	}
}

func (w *Worker[T]) publishReceipt(message *models.ReadOnlyMessage[T], err error, duration time.Duration) {

	if w.receiptHandler == nil {
		return
	}

	w.receiptHandler(&models.ProcessReceipt{
		MessageID: message.MessageID(),
		TunnelID:  message.TunnelID(),
		Success:   err == nil,
		Error:     err,
		Duration:  duration,
	})
}
