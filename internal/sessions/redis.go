package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sports-federation/federation-portal/internal/db/models"
)

const (
	sessionKeyPrefix     = "admin_session:"
	userSessionKeyPrefix = "admin_user_sessions:"
)

func init() {
	Register("redis", func(deps Deps) (Store, error) {
		if deps.Redis == nil {
			return nil, errors.New("redis session backend requires redis.addr")
		}
		return NewRedisStore(deps.Redis, deps.Config.Auth.TokenTTL), nil
	})
}

// RedisStore keeps each session in a hash that expires together with the
// token issued for it, plus a per-user set of session ids.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a RedisStore whose keys live for ttl.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func sessionKey(id string) string      { return sessionKeyPrefix + id }
func userSessionsKey(id string) string { return userSessionKeyPrefix + id }

// Create stores a new session hash and indexes it under the user.
func (s *RedisStore) Create(ctx context.Context, userID, ipAddress, userAgent string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	sid := id.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(sid), map[string]interface{}{
		"user_id":    userID,
		"ip_address": ipAddress,
		"user_agent": userAgent,
		"created_at": s.now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, sessionKey(sid), s.ttl)
	pipe.SAdd(ctx, userSessionsKey(userID), sid)
	pipe.Expire(ctx, userSessionsKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sid, nil
}

// Exists reports whether the session hash is present.
func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Get returns the session, or (nil, nil) when absent or expired.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	return decodeSession(sessionID, fields)
}

func decodeSession(sessionID string, fields map[string]string) (*models.Session, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}
	return &models.Session{
		SessionID: sessionID,
		UserID:    fields["user_id"],
		IPAddress: fields["ip_address"],
		UserAgent: fields["user_agent"],
		CreatedAt: created,
	}, nil
}

// Delete removes the session and its index entry. Absent sessions are ignored.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	userID, err := s.client.HGet(ctx, sessionKey(sessionID), "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.SRem(ctx, userSessionsKey(userID), sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

// ListByUser returns the user's live sessions, newest first. Ids whose hash
// has expired are pruned from the index.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	ids, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]*models.Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, id := range ids {
		sess, err := decodeSession(id, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		if sess == nil {
			stale = append(stale, id)
			continue
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, userSessionsKey(userID), stale...)
	}

	sortNewestFirst(out)
	return out, nil
}

// DeleteByUser removes every session of the user.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ids, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}

	pipe := s.client.TxPipeline()
	var del *redis.IntCmd
	if len(keys) > 0 {
		del = pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, userSessionsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	if del == nil {
		return 0, nil
	}
	return del.Val(), nil
}

func sortNewestFirst(s []*models.Session) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].CreatedAt.After(s[j].CreatedAt)
	})
}
