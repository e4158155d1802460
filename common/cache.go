// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/zeebo/blake3"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrCacheNotConfigured = errors.New("cache has not been set up")
)

const cacheKeyPrefix = "analytics:"

var rdb *redis.Client
var cache *lru.Cache

// SetupCache creates the in-process LRU tier and, when `cache.redis` is
// set, the shared redis tier
func SetupCache() error {
	var err error
	if viper.GetBool("cache.redis") {
		opt, err := redis.ParseURL(viper.GetString("cache.redis_url"))
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return err
		}

		rdb = redis.NewClient(opt)
	}

	size := viper.GetInt("cache.local_size")
	if size <= 0 {
		size = 1024
	}
	cache, err = lru.New(size)
	if err != nil {
		log.Error().Err(err).Msg("could not create LRU cache")
		return err
	}
	return nil
}

// CacheKey hashes the namespace and request payload into a cache key
func CacheKey(namespace string, payload []byte) string {
	hasher := blake3.New()
	_, _ = hasher.Write([]byte(namespace))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write(payload)
	return cacheKeyPrefix + namespace + ":" + hex.EncodeToString(hasher.Sum(nil))
}

func cacheTTL() time.Duration {
	return time.Duration(viper.GetInt("cache.ttl")) * time.Second
}

// CacheSet stores the lz4 compressed value in every configured tier
func CacheSet(ctx context.Context, key string, bytes []byte) error {
	if cache == nil {
		return ErrCacheNotConfigured
	}

	b2, err := Compress(bytes)
	if err != nil {
		return err
	}
	cache.Add(key, b2)

	if rdb != nil {
		return rdb.Set(ctx, key, b2, cacheTTL()).Err()
	}
	return nil
}

// CacheGet returns the cached value and whether it was found
func CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	if cache == nil {
		return nil, false, ErrCacheNotConfigured
	}

	if v2, ok := cache.Get(key); ok {
		val, err := Decompress(v2.([]byte))
		return val, err == nil, err
	}

	if rdb != nil {
		val, err := rdb.GetEx(ctx, key, cacheTTL()).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		cache.Add(key, val)
		out, err := Decompress(val)
		return out, err == nil, err
	}

	return nil, false, nil
}

// CachePurge drops every entry of the local tier. Redis entries expire on
// their own TTL.
func CachePurge() {
	if cache != nil {
		cache.Purge()
	}
}

// CacheLen returns the number of entries in the local tier
func CacheLen() int {
	if cache == nil {
		return 0
	}
	return cache.Len()
}
