package music

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/TheHyyy/vibe-music/model"
)

const mockName = "MOCK"

// MockProvider 离线联调用来源：固定曲库，播放地址是内嵌的静音 WAV。
// 不依赖任何外部服务。
type MockProvider struct {
	songs    []model.Song
	audioURL string
	lyric    string
}

// NewMockProvider 创建 Mock 来源
func NewMockProvider() *MockProvider {
	return &MockProvider{
		songs: []model.Song{
			{ID: "MOCK:1", Title: "Mock Song A", Artist: "Echo", DurationSec: 5, Source: mockName},
			{ID: "MOCK:2", Title: "Mock Song B", Artist: "Echo", DurationSec: 5, Source: mockName},
			{ID: "MOCK:3", Title: "Mock Song C", Artist: "Echo", DurationSec: 5, Source: mockName},
		},
		audioURL: silentWavDataURL(1200),
		lyric:    "[00:00.00]Mock lyric\n[00:01.00]Echo Music\n",
	}
}

// Name 来源名
func (p *MockProvider) Name() string {
	return mockName
}

// Search 标题/歌手的子串匹配，空关键字不出结果
func (p *MockProvider) Search(_ context.Context, query string) ([]model.Song, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.Song{}, nil
	}
	matched := make([]model.Song, 0, len(p.songs))
	for _, s := range p.songs {
		if strings.Contains(strings.ToLower(s.Title), q) ||
			strings.Contains(strings.ToLower(s.Artist), q) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

// PlayURL 返回内嵌静音音频的 data URL
func (p *MockProvider) PlayURL(_ context.Context, id string) (string, error) {
	if !strings.HasPrefix(id, mockName+":") {
		return "", fmt.Errorf("无效的歌曲ID: %s", id)
	}
	return p.audioURL, nil
}

// Lyric 返回固定歌词
func (p *MockProvider) Lyric(_ context.Context, id string) (string, error) {
	if !strings.HasPrefix(id, mockName+":") {
		return "", fmt.Errorf("无效的歌曲ID: %s", id)
	}
	return p.lyric, nil
}

// Hot 固定推荐曲库第一首
func (p *MockProvider) Hot(_ context.Context) (*model.Song, error) {
	song := p.songs[0]
	return &song, nil
}

// silentWavDataURL 生成指定时长静音 WAV 的 data URL（8kHz 单声道 16bit PCM）
func silentWavDataURL(durationMs int) string {
	const (
		sampleRate     = 8000
		channels       = 1
		bytesPerSample = 2
	)
	numSamples := sampleRate * durationMs / 1000
	if numSamples < 1 {
		numSamples = 1
	}
	dataSize := numSamples * channels * bytesPerSample

	buf := make([]byte, 44+dataSize)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataSize))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16) // fmt 块长度
	binary.LittleEndian.PutUint16(buf[20:], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:], channels)
	binary.LittleEndian.PutUint32(buf[24:], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:], sampleRate*channels*bytesPerSample)
	binary.LittleEndian.PutUint16(buf[32:], channels*bytesPerSample)
	binary.LittleEndian.PutUint16(buf[34:], 16) // 位深
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataSize))

	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(buf)
}
