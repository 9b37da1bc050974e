package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"smart_parkai/internal/domain"
)

var ErrSessionNotFound = errors.New("booking session not found")

// SessionStore owns booking sessions. Update runs fn against the current
// session and persists the result atomically with respect to other updates.
type SessionStore interface {
	Create(ctx context.Context, session *domain.BookingSession) error
	Get(ctx context.Context, id string) (*domain.BookingSession, error)
	Update(ctx context.Context, id string, fn func(*domain.BookingSession) error) (*domain.BookingSession, error)
	Delete(ctx context.Context, id string) error
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.BookingSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domain.BookingSession)}
}

func (s *MemorySessionStore) Create(_ context.Context, session *domain.BookingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*domain.BookingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) Update(_ context.Context, id string, fn func(*domain.BookingSession) error) (*domain.BookingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := fn(&session); err != nil {
		return nil, err
	}
	s.sessions[id] = session
	return &session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Sweep drops sessions not updated since cutoff and returns how many were removed.
func (s *MemorySessionStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

const (
	redisSessionPrefix = "booking_session:"
	redisMaxRetries    = 5
)

// RedisSessionStore keeps sessions as JSON with a sliding TTL and uses
// WATCH/MULTI for read-modify-write.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) key(id string) string {
	return redisSessionPrefix + id
}

func (s *RedisSessionStore) Create(ctx context.Context, session *domain.BookingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("RedisSessionStore.Create marshal: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("RedisSessionStore.Create: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.BookingSession, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("RedisSessionStore.Get: %w", err)
	}
	var session domain.BookingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("RedisSessionStore.Get unmarshal: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, id string, fn func(*domain.BookingSession) error) (*domain.BookingSession, error) {
	key := s.key(id)
	var updated domain.BookingSession

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}
			return err
		}
		var session domain.BookingSession
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		if err := fn(&session); err != nil {
			return err
		}
		out, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err == nil {
			updated = session
		}
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return &updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("RedisSessionStore.Update: session %s changed concurrently too often", id)
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("RedisSessionStore.Delete: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
