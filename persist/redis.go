// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
)

const (
	configKeyTempl = "rfm95:config:%s"
	redisTimeout   = time.Second
)

// RedisStore keeps the record of one device in Redis, for gateways hosting several nodes.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore returns a store for the device with the given address.
func NewRedisStore(client redis.UniversalClient, addr lorawan.DevAddr) *RedisStore {
	return &RedisStore{client: client, key: fmt.Sprintf(configKeyTempl, addr)}
}

// Key returns the Redis key holding the record.
func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) Load() (*Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	b, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Wrap(err, "persist: get config error")
	}
	var c Config
	if err := c.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisStore) Save(c *Config) error {
	b, err := c.MarshalBinary()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return errors.Wrap(err, "persist: save config error")
	}
	return nil
}
