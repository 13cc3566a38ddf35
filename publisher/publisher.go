package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/houseofcat/pistol/models"
	"github.com/houseofcat/pistol/queue"
)

const (
	defaultLetterBuffer  = 1000
	defaultReceiptBuffer = 1000
)

// Publisher offers letters to a Queue, directly or from its own auto-publishing loop.
type Publisher[T any] struct {
	Config *models.PublisherConfig
	queue  *queue.Queue[T]

	sleepOnErrorInterval time.Duration

	autoStarted     int32
	letters         chan *models.Letter[T]
	publishReceipts chan *models.PublishReceipt[T]
	wg              sync.WaitGroup
	shutdownSignal  chan struct{}
	once            sync.Once
}

// NewPublisher creates and configures a new Publisher.
func NewPublisher[T any](config *models.PublisherConfig, q *queue.Queue[T]) *Publisher[T] {

	if config == nil {
		config = &models.PublisherConfig{}
	}

	letterBuffer := config.LetterBuffer
	if letterBuffer == 0 {
		letterBuffer = defaultLetterBuffer
	}

	receiptBuffer := config.ReceiptBuffer
	if receiptBuffer == 0 {
		receiptBuffer = defaultReceiptBuffer
	}

	return &Publisher[T]{
		Config: config,
		queue:  q,

		letters:         make(chan *models.Letter[T], letterBuffer),
		publishReceipts: make(chan *models.PublishReceipt[T], receiptBuffer),

		autoStarted:    0, // false
		shutdownSignal: make(chan struct{}),

		sleepOnErrorInterval: time.Duration(config.SleepOnErrorInterval) * time.Millisecond,
	}
}

// Publish offers a single letter to the address on the letter.
// Subscribe to PublishReceipts to see success and errors.
func (pub *Publisher[T]) Publish(letter *models.Letter[T], skipReceipt bool) {

	err := pub.offer(letter)

	if !skipReceipt {
		pub.publishReceipt(letter, err)
	}
}

// PublishWithError offers a single letter to the address on the letter and returns the failure directly.
func (pub *Publisher[T]) PublishWithError(letter *models.Letter[T], skipReceipt bool) error {

	err := pub.offer(letter)

	if !skipReceipt {
		pub.publishReceipt(letter, err)
	}

	return err
}

func (pub *Publisher[T]) offer(letter *models.Letter[T]) error {

	if letter == nil || letter.Message == nil {
		return models.ErrUndefinedMessage
	}

	var err error
	if letter.TunnelID == "" {
		_, err = pub.queue.OfferRouted(letter.Message)
	} else {
		_, err = pub.queue.OfferForID(letter.Message, letter.TunnelID)
	}

	if err != nil {
		return fmt.Errorf("publish of LetterID: %s failed: %w", letter.LetterID, err)
	}

	return nil
}

// PublishReceipts yields all the success and failures during all publish events. Highly recommend subscribing to this.
func (pub *Publisher[T]) PublishReceipts() <-chan *models.PublishReceipt[T] {
	return pub.publishReceipts
}

// StartAutoPublishing starts the Publisher's auto-publishing capabilities.
func (pub *Publisher[T]) StartAutoPublishing() {

	if !pub.isAutoStarted() {
		pub.setAutoStarted(true)
		pub.wg.Add(1)
		go pub.startAutoPublishingLoop()
	}
}

func (pub *Publisher[T]) startAutoPublishingLoop() {
	defer pub.wg.Done()

	pub.deliverLetters()
	pub.setAutoStarted(false)
}

// deliverLetters publishes one letter at a time so letters for the same tunnel keep their order.
func (pub *Publisher[T]) deliverLetters() {

	for {
		select {
		case <-pub.catchShutdown():
			return
		case letter, ok := <-pub.letters:
			if !ok {
				return
			}

			if err := pub.PublishWithError(letter, false); err != nil && pub.sleepOnErrorInterval > 0 {
				select {
				case <-pub.catchShutdown():
					return
				case <-time.After(pub.sleepOnErrorInterval):
				}
			}
		}
	}
}

// QueueLetters allows you to bulk queue letters that will be consumed by AutoPublish.
func (pub *Publisher[T]) QueueLetters(letters []*models.Letter[T]) bool {

	for _, letter := range letters {

		if ok := pub.safeSend(letter); !ok {
			return false
		}
	}

	return true
}

// QueueLetter queues up a letter that will be consumed by AutoPublish.
func (pub *Publisher[T]) QueueLetter(letter *models.Letter[T]) bool {

	return pub.safeSend(letter)
}

// safeSend should handle a scenario on publishing to a closed channel.
func (pub *Publisher[T]) safeSend(letter *models.Letter[T]) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case <-pub.catchShutdown():
		return false
	case pub.letters <- letter:
		return true
	}
}

// publishReceipt sends the status to the receipt channel.
func (pub *Publisher[T]) publishReceipt(letter *models.Letter[T], err error) {

	publishReceipt := &models.PublishReceipt[T]{
		Error: err,
	}

	if letter != nil {
		publishReceipt.LetterID = letter.LetterID
		publishReceipt.TunnelID = letter.TunnelID
		if letter.Message != nil {
			publishReceipt.MessageID = letter.Message.MessageID()
		}
	}

	if err == nil {
		publishReceipt.Success = true
		publishReceipt.TunnelID = letter.Message.TunnelID()
	} else {
		publishReceipt.FailedLetter = letter
	}

	select {
	case <-pub.catchShutdown():
		return
	default:
	}

	pub.wg.Add(1)
	go func() {
		defer pub.wg.Done()

		select {
		case <-pub.catchShutdown():
			// Receipt is dropped, nobody is listening anymore.
			return
		case pub.publishReceipts <- publishReceipt:
			return
		}
	}()
}

// Close cleanly shuts down the publisher and closes the receipt channel. The Queue is left running.
func (pub *Publisher[T]) Close() {
	pub.once.Do(func() {
		close(pub.shutdownSignal)

		// wait for all spawned goroutines to finish execution
		pub.wg.Wait()

		close(pub.publishReceipts)
	})
}

func (pub *Publisher[T]) isAutoStarted() bool {
	autoStarted := atomic.LoadInt32(&pub.autoStarted)
	return autoStarted != 0
}

func (pub *Publisher[T]) setAutoStarted(autoStarted bool) {
	var i int32 = 0
	if autoStarted {
		i = 1
	}

	atomic.StoreInt32(&pub.autoStarted, i)
}

func (pub *Publisher[T]) catchShutdown() <-chan struct{} {
	return pub.shutdownSignal
}
