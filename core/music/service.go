package music

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheHyyy/vibe-music/config"
	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

// Cache 搜索结果与播放地址的缓存。播放地址有时效，由实现控制 TTL。
// 实现允许为 nil 等价的空操作（Redis 未启用时直连来源）。
type Cache interface {
	GetSearch(ctx context.Context, query string) ([]model.Song, bool)
	SetSearch(ctx context.Context, query string, songs []model.Song)
	GetPlayURL(ctx context.Context, id string) (string, bool)
	SetPlayURL(ctx context.Context, id, url string)
}

// Service 聚合多个音乐来源：搜索扇出到全部来源合并结果，
// 播放地址和歌词按歌曲ID前缀路由到单一来源。
type Service struct {
	providers []Provider
	cache     Cache
}

// NewService 按配置构建来源列表。PROVIDER_MODE=MOCK 时只挂 Mock 来源。
func NewService(cfg *config.Config, cache Cache) *Service {
	var providers []Provider
	if strings.EqualFold(cfg.ProviderMode, "MOCK") {
		providers = []Provider{NewMockProvider()}
	} else {
		providers = []Provider{NewNeteaseProvider(cfg.NeteaseAPIURL, cfg.NeteaseCookie)}
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	logger.Info("音乐来源已加载", logger.Any("providers", names))

	return &Service{providers: providers, cache: cache}
}

// Search 扇出搜索。单个来源失败只记日志，不影响其他来源的结果。
func (s *Service) Search(ctx context.Context, query string) ([]model.Song, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Song{}, nil
	}

	if s.cache != nil {
		if songs, ok := s.cache.GetSearch(ctx, query); ok {
			return songs, nil
		}
	}

	results := make([]model.Song, 0, 16)
	for _, p := range s.providers {
		songs, err := p.Search(ctx, query)
		if err != nil {
			logger.Warn("来源搜索失败",
				logger.String("provider", p.Name()),
				logger.String("query", query),
				logger.ErrorField(err))
			continue
		}
		results = append(results, songs...)
	}

	if s.cache != nil && len(results) > 0 {
		s.cache.SetSearch(ctx, query, results)
	}
	return results, nil
}

// PlayURL 按ID前缀路由获取播放地址
func (s *Service) PlayURL(ctx context.Context, id string) (string, error) {
	if s.cache != nil {
		if url, ok := s.cache.GetPlayURL(ctx, id); ok {
			return url, nil
		}
	}

	p, err := s.route(id)
	if err != nil {
		return "", err
	}
	url, err := p.PlayURL(ctx, id)
	if err != nil {
		return "", err
	}

	if s.cache != nil && url != "" {
		s.cache.SetPlayURL(ctx, id, url)
	}
	return url, nil
}

// Lyric 按ID前缀路由获取歌词
func (s *Service) Lyric(ctx context.Context, id string) (string, error) {
	p, err := s.route(id)
	if err != nil {
		return "", err
	}
	return p.Lyric(ctx, id)
}

// Hot 热门推荐：依次询问各来源，取第一个给出结果的
func (s *Service) Hot(ctx context.Context) (*model.Song, error) {
	for _, p := range s.providers {
		song, err := p.Hot(ctx)
		if err != nil {
			logger.Warn("来源热门推荐失败",
				logger.String("provider", p.Name()),
				logger.ErrorField(err))
			continue
		}
		if song != nil {
			return song, nil
		}
	}
	return nil, fmt.Errorf("没有可用的热门推荐")
}

// route 解析歌曲ID的来源前缀并匹配来源（不区分大小写）
func (s *Service) route(id string) (Provider, error) {
	prefix, _, ok := strings.Cut(id, ":")
	if !ok {
		return nil, fmt.Errorf("无效的歌曲ID: %s", id)
	}
	for _, p := range s.providers {
		if strings.EqualFold(p.Name(), prefix) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("未知的音乐来源: %s", prefix)
}
