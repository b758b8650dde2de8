package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"biobind/internal/biometric/models"
	"biobind/pkg/platform/sentinel"
)

// Redis key prefix for pending capture sessions.
const sessionKeyPrefix = "bio:session:"

// RedisStore is the multi-instance session cache. Redis gives us both
// halves of the contract natively: SET with TTL handles eviction without a
// sweeper, and GETDEL makes Take a single atomic read-and-evict.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// redisSession is the wire form of a pending session. Feature data lives
// here only for the session TTL; Redis holds no durable biometric state.
type redisSession struct {
	Token        string    `json:"token"`
	IdentityRef  string    `json:"identity_ref"`
	Modality     string    `json:"modality"`
	Features     []float64 `json:"features"`
	Fingerprint  []float64 `json:"fingerprint"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *RedisStore) Put(ctx context.Context, sess *models.CaptureSession) error {
	payload, err := json.Marshal(redisSession{
		Token:        sess.Token,
		IdentityRef:  sess.IdentityRef,
		Modality:     string(sess.Modality),
		Features:     sess.Features,
		Fingerprint:  sess.Fingerprint,
		QualityScore: sess.QualityScore,
		CreatedAt:    sess.CreatedAt,
		ExpiresAt:    sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal capture session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+sess.Token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store capture session: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, token string) (*models.CaptureSession, error) {
	raw, err := s.client.GetDel(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume capture session: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal capture session: %w", err)
	}
	return &models.CaptureSession{
		Token:        rs.Token,
		IdentityRef:  rs.IdentityRef,
		Modality:     models.Modality(rs.Modality),
		Features:     rs.Features,
		Fingerprint:  rs.Fingerprint,
		QualityScore: rs.QualityScore,
		CreatedAt:    rs.CreatedAt,
		ExpiresAt:    rs.ExpiresAt,
	}, nil
}
