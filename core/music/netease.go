package music

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

const neteaseName = "NETEASE"

// NeteaseProvider 网易云音乐来源，走本地部署的 NeteaseCloudMusicApi 服务
type NeteaseProvider struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
}

// NewNeteaseProvider 创建网易云来源。
// cookie 允许直接传 MUSIC_U 的裸 token，会自动补全键名。
func NewNeteaseProvider(baseURL, cookie string) *NeteaseProvider {
	if cookie != "" && !strings.Contains(cookie, "=") && len(cookie) > 50 {
		cookie = "MUSIC_U=" + cookie
	}
	return &NeteaseProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		cookie:  cookie,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name 来源名
func (p *NeteaseProvider) Name() string {
	return neteaseName
}

// Search 单曲搜索
func (p *NeteaseProvider) Search(ctx context.Context, query string) ([]model.Song, error) {
	// type=1 只搜单曲
	endpoint := fmt.Sprintf("%s/cloudsearch?keywords=%s&type=1&limit=10", p.baseURL, url.QueryEscape(query))

	var result struct {
		Code   int `json:"code"`
		Result struct {
			Songs []struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
				Dt   int64  `json:"dt"` // 毫秒
				Ar   []struct {
					Name string `json:"name"`
				} `json:"ar"`
				Al struct {
					PicURL string `json:"picUrl"`
				} `json:"al"`
			} `json:"songs"`
		} `json:"result"`
	}
	if err := p.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if result.Code != 200 {
		return nil, fmt.Errorf("API返回错误码: %d", result.Code)
	}

	songs := make([]model.Song, 0, len(result.Result.Songs))
	for _, s := range result.Result.Songs {
		artists := make([]string, 0, len(s.Ar))
		for _, a := range s.Ar {
			artists = append(artists, a.Name)
		}
		songs = append(songs, model.Song{
			ID:          fmt.Sprintf("%s:%d", neteaseName, s.ID),
			Title:       s.Name,
			Artist:      strings.Join(artists, ", "),
			DurationSec: int(s.Dt / 1000),
			CoverURL:    s.Al.PicURL,
			Source:      neteaseName,
		})
	}

	logger.Debug("网易云搜索完成",
		logger.String("query", query),
		logger.Int("count", len(songs)))
	return songs, nil
}

// PlayURL 获取播放地址。URL 为空通常是版权限制。
func (p *NeteaseProvider) PlayURL(ctx context.Context, id string) (string, error) {
	realID, err := p.realID(id)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/song/url/v1?id=%s&level=exhigh", p.baseURL, realID)

	var result struct {
		Code int `json:"code"`
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, endpoint, &result); err != nil {
		return "", err
	}
	if result.Code != 200 {
		return "", fmt.Errorf("API返回错误码: %d", result.Code)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", fmt.Errorf("歌曲URL为空，可能是版权限制")
	}
	return result.Data[0].URL, nil
}

// Lyric 获取 LRC 歌词
func (p *NeteaseProvider) Lyric(ctx context.Context, id string) (string, error) {
	realID, err := p.realID(id)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/lyric?id=%s", p.baseURL, realID)

	var result struct {
		Code int `json:"code"`
		Lrc  struct {
			Lyric string `json:"lyric"`
		} `json:"lrc"`
	}
	if err := p.getJSON(ctx, endpoint, &result); err != nil {
		return "", err
	}
	if result.Code != 200 {
		return "", fmt.Errorf("API返回错误码: %d", result.Code)
	}
	return result.Lrc.Lyric, nil
}

// Hot 取一首推荐新歌
func (p *NeteaseProvider) Hot(ctx context.Context) (*model.Song, error) {
	endpoint := fmt.Sprintf("%s/personalized/newsong?limit=1", p.baseURL)

	var result struct {
		Code   int `json:"code"`
		Result []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
			Song struct {
				Duration int64 `json:"duration"`
				Artists  []struct {
					Name string `json:"name"`
				} `json:"artists"`
				Album struct {
					PicURL string `json:"picUrl"`
				} `json:"album"`
			} `json:"song"`
		} `json:"result"`
	}
	if err := p.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	if result.Code != 200 || len(result.Result) == 0 {
		return nil, fmt.Errorf("未获取到推荐歌曲")
	}

	r := result.Result[0]
	artists := make([]string, 0, len(r.Song.Artists))
	for _, a := range r.Song.Artists {
		artists = append(artists, a.Name)
	}
	return &model.Song{
		ID:          fmt.Sprintf("%s:%d", neteaseName, r.ID),
		Title:       r.Name,
		Artist:      strings.Join(artists, ", "),
		DurationSec: int(r.Song.Duration / 1000),
		CoverURL:    r.Song.Album.PicURL,
		Source:      neteaseName,
	}, nil
}

// realID 剥掉来源前缀，校验剩余部分是数字ID
func (p *NeteaseProvider) realID(id string) (string, error) {
	_, raw, ok := strings.Cut(id, ":")
	if !ok {
		raw = id
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		return "", fmt.Errorf("无效的歌曲ID: %s", id)
	}
	return raw, nil
}

func (p *NeteaseProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if p.cookie != "" {
		req.Header.Set("Cookie", p.cookie)
	}
	// 确保返回正常码率的url
	req.AddCookie(&http.Cookie{Name: "os", Value: "pc"})

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API返回错误状态码: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
