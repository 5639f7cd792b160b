package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	app "memcap/src/app"
	cfg "memcap/src/configuration"
)

const (
	accessPrefix  = "memcap:session:access:"
	refreshPrefix = "memcap:session:refresh:"
)

// RedisSessions shares sessions between server replicas.
type RedisSessions struct {
	client *redis.Client
}

// NewRedis connects and pings the server.
func NewRedis(config cfg.RedisProperties) (*RedisSessions, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisSessions{client: client}, nil
}

func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client}
}

func (r *RedisSessions) Save(ctx context.Context, s *app.Session, ttl time.Duration) error {
	if s == nil || s.AccessToken == "" {
		return fmt.Errorf("can not save session without access token")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, accessPrefix+s.AccessToken, raw, ttl)
	if s.RefreshToken != "" {
		pipe.Set(ctx, refreshPrefix+s.RefreshToken, s.AccessToken, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisSessions) ByAccessToken(ctx context.Context, accessToken string) (*app.Session, error) {
	raw, err := r.client.Get(ctx, accessPrefix+accessToken).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s := &app.Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (r *RedisSessions) ByRefreshToken(ctx context.Context, refreshToken string) (*app.Session, error) {
	accessToken, err := r.client.Get(ctx, refreshPrefix+refreshToken).Result()
	if errors.Is(err, redis.Nil) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	return r.ByAccessToken(ctx, accessToken)
}

func (r *RedisSessions) Delete(ctx context.Context, accessToken string) error {
	s, err := r.ByAccessToken(ctx, accessToken)
	if errors.Is(err, app.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	keys := []string{accessPrefix + accessToken}
	if s.RefreshToken != "" {
		keys = append(keys, refreshPrefix+s.RefreshToken)
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisSessions) Close() error {
	return r.client.Close()
}
