package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"heartchat-service/internal/database"

	"github.com/redis/go-redis/v9"
)

// membershipKey holds the single wholesale snapshot record:
// roomID -> ordered list of session ids.
const membershipKey = "hub:membership"

// RoomStateService is the durable side of the connection coordinator: the
// membership snapshot, user presence, and the sliding-window rate limiter
// shared with the REST middleware.
type RoomStateService struct {
	client *database.RedisClient
}

func NewRoomStateService(client *database.RedisClient) *RoomStateService {
	return &RoomStateService{client: client}
}

// =============================================================================
// Membership snapshot
// =============================================================================

// SaveMembershipSnapshot overwrites the whole snapshot record. There is one
// coordinator instance per deployment, so no concurrent writers exist.
func (s *RoomStateService) SaveMembershipSnapshot(ctx context.Context, rooms map[string][]string) error {
	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to marshal membership snapshot: %w", err)
	}
	if err := s.client.GetClient().Set(ctx, membershipKey, data, 0).Err(); err != nil {
		slog.Error("failed to save membership snapshot", "error", err)
		return err
	}
	slog.Debug("membership snapshot saved", "rooms", len(rooms))
	return nil
}

// LoadMembershipSnapshot returns the last persisted snapshot, or an empty map
// when none exists yet. The snapshot reflects intended membership only; it is
// never consulted for delivery.
func (s *RoomStateService) LoadMembershipSnapshot(ctx context.Context) (map[string][]string, error) {
	data, err := s.client.GetClient().Get(ctx, membershipKey).Result()
	if err == redis.Nil {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rooms map[string][]string
	if err := json.Unmarshal([]byte(data), &rooms); err != nil {
		return nil, fmt.Errorf("corrupt membership snapshot: %w", err)
	}
	return rooms, nil
}

// =============================================================================
// User presence
// =============================================================================

func (s *RoomStateService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := s.client.GetClient().Pipeline()
	pipe.SAdd(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":    "online",
		"last_seen": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 5*time.Minute)
	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed to set user online", "userID", userID, "error", err)
	}
	return err
}

func (s *RoomStateService) SetUserOffline(ctx context.Context, userID string) error {
	pipe := s.client.GetClient().Pipeline()
	pipe.SRem(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]interface{}{
		"status":    "offline",
		"last_seen": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 24*time.Hour)
	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed to set user offline", "userID", userID, "error", err)
	}
	return err
}

func (s *RoomStateService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return s.client.GetClient().SIsMember(ctx, "online_users", userID).Result()
}

func (s *RoomStateService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return s.client.GetClient().SMembers(ctx, "online_users").Result()
}

// =============================================================================
// Rate limiting
// =============================================================================

func (s *RoomStateService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).Unix()

	pipe := s.client.GetClient().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	results, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}
	count := results[1].(*redis.IntCmd).Val()
	return count < int64(limit), nil
}
