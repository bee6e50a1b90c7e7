// Package redis publishes applied events to Redis Streams so downstream
// consumers (the frontend API, the AVS operator) can tail derived state
// changes without polling Postgres.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// payloadField is the single stream entry field carrying the JSON document.
const payloadField = "payload"

// Stream wraps a Redis client with the XADD/XREAD operations the indexer
// needs. One Stream instance is shared by all publishers.
type Stream struct {
	client *redis.Client
}

func NewStream(url string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Stream{client: client}, nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

func (s *Stream) Client() *redis.Client {
	return s.client
}

// PublishJSON appends v to the named stream and returns the entry ID
// assigned by Redis.
func (s *Stream) PublishJSON(ctx context.Context, stream string, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream payload: %w", err)
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// ReadJSON blocks until an entry after lastID appears on the stream,
// unmarshals its payload into dst and returns the entry ID to resume from.
func (s *Stream) ReadJSON(ctx context.Context, stream, lastID string, dst any) (string, error) {
	if lastID == "" {
		lastID = "0"
	}
	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   1,
		Block:   0,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xread %s: %w", stream, err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", fmt.Errorf("xread %s: empty response", stream)
	}
	msg := res[0].Messages[0]
	raw, err := streamPayload(msg.Values[payloadField])
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return "", fmt.Errorf("unmarshal stream payload: %w", err)
	}
	return msg.ID, nil
}

// LoadStreamCheckpoint returns the last persisted resume position for the
// key, or empty if none exists.
func (s *Stream) LoadStreamCheckpoint(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint %s: %w", key, err)
	}
	return value, nil
}

// PersistStreamCheckpoint stores the resume position for the key. An empty
// key is a no-op so callers can leave checkpointing unconfigured.
func (s *Stream) PersistStreamCheckpoint(ctx context.Context, key, streamID string) error {
	if key == "" {
		return nil
	}
	if err := validateStreamOffset(streamID); err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, streamID, 0).Err(); err != nil {
		return fmt.Errorf("persist checkpoint %s: %w", key, err)
	}
	return nil
}

// streamPayload coerces a stream entry field value into raw bytes. Redis
// returns strings; in-memory transports may hand back bytes or Stringers.
func streamPayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case fmt.Stringer:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("stream payload type %T not supported", v)
	}
}

// parseStreamOffset extracts the millisecond component of a stream entry ID
// ("1690000000000-0"). Negative values clamp to zero.
func parseStreamOffset(id string) (int64, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, nil
	}
	if seq := strings.Index(id, "-"); seq > 0 {
		id = id[:seq]
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stream offset %q: %w", id, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// validateStreamOffset rejects IDs that would corrupt a checkpoint. Empty
// is allowed (meaning "start from the beginning").
func validateStreamOffset(id string) error {
	if id == "" {
		return nil
	}
	parts := strings.SplitN(id, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || ms < 0 {
		return fmt.Errorf("invalid stream offset %q", id)
	}
	if len(parts) == 2 {
		if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
			return fmt.Errorf("invalid stream offset %q", id)
		}
	}
	return nil
}

// InMemoryStream is a process-local MessageTransport used in tests and
// single-process deployments where Redis is not configured.
type InMemoryStream struct {
	mu          sync.Mutex
	cond        *sync.Cond
	streams     map[string][]inMemoryEntry
	checkpoints map[string]string
	nextSeq     int64
}

type inMemoryEntry struct {
	id      string
	payload []byte
}

func NewInMemoryStream() *InMemoryStream {
	s := &InMemoryStream{
		streams:     make(map[string][]inMemoryEntry),
		checkpoints: make(map[string]string),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *InMemoryStream) PublishJSON(ctx context.Context, stream string, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	id := strconv.FormatInt(s.nextSeq, 10) + "-0"
	s.streams[stream] = append(s.streams[stream], inMemoryEntry{id: id, payload: body})
	s.cond.Broadcast()
	return id, nil
}

func (s *InMemoryStream) ReadJSON(ctx context.Context, stream, lastID string, dst any) (string, error) {
	after, err := parseStreamOffset(lastID)
	if err != nil {
		return "", err
	}

	// Wake blocked readers when the context ends; Cond has no native
	// cancellation.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for _, entry := range s.streams[stream] {
			offset, err := parseStreamOffset(entry.id)
			if err != nil {
				continue
			}
			if offset > after {
				if err := json.Unmarshal(entry.payload, dst); err != nil {
					return "", fmt.Errorf("unmarshal stream payload: %w", err)
				}
				return entry.id, nil
			}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.cond.Wait()
	}
}

func (s *InMemoryStream) LoadStreamCheckpoint(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[key], nil
}

func (s *InMemoryStream) PersistStreamCheckpoint(_ context.Context, key, streamID string) error {
	if key == "" {
		return nil
	}
	if err := validateStreamOffset(streamID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[key] = streamID
	return nil
}

func (s *InMemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string][]inMemoryEntry)
	s.checkpoints = make(map[string]string)
	s.cond.Broadcast()
	return nil
}
