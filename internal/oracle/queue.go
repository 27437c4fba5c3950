// queue.go - Redis-backed oracle request queue.
//
// When the oracle runs out of process, the registry pushes decryption requests
// onto a Redis list and a worker (cmd/revealworker) pops them, decrypts,
// attests, and posts the callback over HTTP.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue errors.
var (
	ErrBadEnvelope    = errors.New("unexpected message on oracle queue")
	ErrConnectionLost = errors.New("queue connection lost")
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisQueue pushes decryption requests to Redis. It implements Client.
type RedisQueue struct {
	client   *redis.Client
	queueKey string
	senderID string
}

// NewRedisQueue connects to Redis and names the request list.
func NewRedisQueue(cfg RedisConfig, name string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisQueue{
		client:   client,
		queueKey: fmt.Sprintf("registry:%s:requests", name),
		senderID: "registry",
	}, nil
}

// RequestDecryption mints a request id and pushes the job for a worker.
func (q *RedisQueue) RequestDecryption(ctx context.Context, job *Job) (string, error) {
	if job == nil || len(job.Ciphertexts) == 0 {
		return "", errors.New("empty decryption job")
	}
	id := NewRequestID(job)
	env, err := EncodeMessage(TypeDecryptionRequest, DecryptionRequestPayload{
		RequestID:   id,
		Kind:        job.Kind,
		Ciphertexts: job.Ciphertexts,
	}, q.senderID)
	if err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.queueKey, env).Err(); err != nil {
		return "", fmt.Errorf("push decryption request: %w", err)
	}
	return id, nil
}

// NextRequest blocks until a decryption request is available. Workers call
// this in a loop; cancellation comes through ctx.
func (q *RedisQueue) NextRequest(ctx context.Context) (*DecryptionRequestPayload, error) {
	vals, err := q.client.BRPop(ctx, 0, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if len(vals) != 2 {
		return nil, ErrBadEnvelope
	}
	msg, err := DecodeMessage([]byte(vals[1]))
	if err != nil {
		return nil, err
	}
	if msg.Type != TypeDecryptionRequest {
		return nil, fmt.Errorf("%w: type %q", ErrBadEnvelope, msg.Type)
	}
	var req DecryptionRequestPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return &req, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
