package music

import (
	"context"

	"github.com/TheHyyy/vibe-music/model"
)

// Provider 音乐来源。歌曲ID带来源前缀（如 "NETEASE:123456"），
// 播放地址和歌词按前缀路由回对应来源。
type Provider interface {
	// Name 来源名，同时是歌曲ID的前缀
	Name() string
	// Search 按关键字搜索单曲
	Search(ctx context.Context, query string) ([]model.Song, error)
	// PlayURL 获取可播放地址，拿不到时返回错误
	PlayURL(ctx context.Context, id string) (string, error)
	// Lyric 获取 LRC 歌词文本
	Lyric(ctx context.Context, id string) (string, error)
	// Hot 获取一首热门推荐，自动点歌用
	Hot(ctx context.Context) (*model.Song, error)
}
