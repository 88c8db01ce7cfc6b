package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

const (
	songSearchKey  = "song:search:%s" // String: 搜索结果 JSON，key 带关键字摘要
	songPlayURLKey = "song:url:%s"    // String: 播放地址
	searchTTL      = 10 * time.Minute
	playURLTTL     = 5 * time.Minute // 播放地址有时效，过期前重新获取
)

// SongCache 歌曲搜索与播放地址缓存。所有方法对 Redis 故障宽容：
// 读失败视为未命中，写失败只记日志，调用方无感知。
type SongCache struct {
	client *redis.Client
}

// NewSongCache 创建歌曲缓存
func NewSongCache() *SongCache {
	return &SongCache{client: RedisClient}
}

// GetSearch 读搜索结果缓存
func (c *SongCache) GetSearch(ctx context.Context, query string) ([]model.Song, bool) {
	if c.client == nil {
		return nil, false
	}

	key := fmt.Sprintf(songSearchKey, queryDigest(query))
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取搜索缓存失败", logger.ErrorField(err))
		}
		return nil, false
	}

	var songs []model.Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, false
	}
	return songs, true
}

// SetSearch 写搜索结果缓存
func (c *SongCache) SetSearch(ctx context.Context, query string, songs []model.Song) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(songs)
	if err != nil {
		return
	}
	key := fmt.Sprintf(songSearchKey, queryDigest(query))
	if err := c.client.Set(ctx, key, data, searchTTL).Err(); err != nil {
		logger.Warn("写入搜索缓存失败", logger.ErrorField(err))
	}
}

// GetPlayURL 读播放地址缓存
func (c *SongCache) GetPlayURL(ctx context.Context, id string) (string, bool) {
	if c.client == nil {
		return "", false
	}

	key := fmt.Sprintf(songPlayURLKey, id)
	url, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取播放地址缓存失败", logger.ErrorField(err))
		}
		return "", false
	}
	return url, true
}

// SetPlayURL 写播放地址缓存
func (c *SongCache) SetPlayURL(ctx context.Context, id, url string) {
	if c.client == nil {
		return
	}

	key := fmt.Sprintf(songPlayURLKey, id)
	if err := c.client.Set(ctx, key, url, playURLTTL).Err(); err != nil {
		logger.Warn("写入播放地址缓存失败", logger.ErrorField(err))
	}
}

// queryDigest 关键字归一化后取摘要做缓存键，避免关键字里的特殊字符
func queryDigest(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("%x", md5.Sum([]byte(normalized)))
}
