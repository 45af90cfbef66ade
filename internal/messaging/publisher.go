package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher appends typed events to the durable streams. Calls return
// immediately; the append outcome is observed only through the publisher's
// completion logging.
type Publisher interface {
	PublishPdfProcessing(ctx context.Context, msg PdfProcessingMessage)
	PublishTodoSync(ctx context.Context, msg TodoSyncMessage)
	PublishNotification(ctx context.Context, msg NotificationMessage)
}

// xadder is the slice of the redis client the publisher needs. Kept small
// so tests can substitute a recording fake.
type xadder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type publishRequest struct {
	stream  string
	key     string
	payload []byte
}

// StreamPublisher drains a FIFO queue with a single worker, so events
// sharing a stream land in enqueue order. Failed appends are logged and
// never retried here; at-least-once recovery is the consumer's concern.
type StreamPublisher struct {
	rdb    xadder
	logger *zap.Logger

	mu        sync.RWMutex
	closed    bool
	queue     chan publishRequest
	done      chan struct{}
	closeOnce sync.Once

	appendTimeout time.Duration
}

func NewStreamPublisher(rdb xadder, logger *zap.Logger) *StreamPublisher {
	p := &StreamPublisher{
		rdb:           rdb,
		logger:        logger,
		queue:         make(chan publishRequest, 256),
		done:          make(chan struct{}),
		appendTimeout: 5 * time.Second,
	}
	go p.drain()
	return p
}

func (p *StreamPublisher) PublishPdfProcessing(ctx context.Context, msg PdfProcessingMessage) {
	p.enqueue(StreamPdfProcessing, msg.TaskID, msg)
}

func (p *StreamPublisher) PublishTodoSync(ctx context.Context, msg TodoSyncMessage) {
	p.enqueue(StreamTodoSync, msg.UserID, msg)
}

func (p *StreamPublisher) PublishNotification(ctx context.Context, msg NotificationMessage) {
	p.enqueue(StreamNotification, msg.UserID, msg)
}

func (p *StreamPublisher) enqueue(stream, key string, msg any) {
	if p == nil || p.rdb == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("encode event failed",
				zap.String("stream", stream),
				zap.String("key", key),
				zap.Error(err))
		}
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- publishRequest{stream: stream, key: key, payload: payload}:
	default:
		if p.logger != nil {
			p.logger.Error("publish queue full, event dropped",
				zap.String("stream", stream),
				zap.String("key", key))
		}
	}
}

func (p *StreamPublisher) drain() {
	defer close(p.done)
	for req := range p.queue {
		p.append(req)
	}
}

func (p *StreamPublisher) append(req publishRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), p.appendTimeout)
	defer cancel()

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: req.stream,
		Values: map[string]any{
			"key":     req.key,
			"payload": req.payload,
		},
	}).Result()
	if p.logger == nil {
		return
	}
	if err != nil {
		p.logger.Error("event append failed",
			zap.String("stream", req.stream),
			zap.String("key", req.key),
			zap.Error(err))
		return
	}
	p.logger.Debug("event appended",
		zap.String("stream", req.stream),
		zap.String("key", req.key),
		zap.String("entry_id", id))
}

// Close stops accepting events and waits for the queue to flush.
func (p *StreamPublisher) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.queue)
		<-p.done
	})
}
