package music

import (
	"context"
	"strings"
	"testing"

	"github.com/TheHyyy/vibe-music/config"
)

func newMockService() *Service {
	return NewService(&config.Config{ProviderMode: "MOCK"}, nil)
}

func TestMockSearch(t *testing.T) {
	s := newMockService()
	ctx := context.Background()

	songs, err := s.Search(ctx, "mock")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(songs) != 3 {
		t.Fatalf("result count = %d, want 3", len(songs))
	}
	for _, song := range songs {
		if !strings.HasPrefix(song.ID, "MOCK:") {
			t.Fatalf("song ID %s lacks source prefix", song.ID)
		}
		if song.Source != "MOCK" {
			t.Fatalf("song source = %s", song.Source)
		}
	}

	// 按歌手匹配
	songs, err = s.Search(ctx, "echo")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(songs) != 3 {
		t.Fatalf("artist match count = %d, want 3", len(songs))
	}

	// 空关键字不出结果
	songs, err = s.Search(ctx, "   ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(songs) != 0 {
		t.Fatalf("empty query returned %d songs", len(songs))
	}
}

func TestPlayURLRouting(t *testing.T) {
	s := newMockService()
	ctx := context.Background()

	url, err := s.PlayURL(ctx, "MOCK:1")
	if err != nil {
		t.Fatalf("PlayURL: %v", err)
	}
	if !strings.HasPrefix(url, "data:audio/wav;base64,") {
		t.Fatalf("unexpected url: %.40s", url)
	}

	// 前缀不区分大小写
	if _, err := s.PlayURL(ctx, "mock:1"); err != nil {
		t.Fatalf("lowercase prefix rejected: %v", err)
	}

	// 未挂载的来源报错
	if _, err := s.PlayURL(ctx, "NETEASE:123"); err == nil {
		t.Fatal("unknown source routed")
	}
	// 没有前缀的ID报错
	if _, err := s.PlayURL(ctx, "12345"); err == nil {
		t.Fatal("prefix-less id routed")
	}
}

func TestMockLyricAndHot(t *testing.T) {
	s := newMockService()
	ctx := context.Background()

	lyric, err := s.Lyric(ctx, "MOCK:2")
	if err != nil {
		t.Fatalf("Lyric: %v", err)
	}
	if !strings.Contains(lyric, "Mock lyric") {
		t.Fatalf("unexpected lyric: %q", lyric)
	}

	song, err := s.Hot(ctx)
	if err != nil {
		t.Fatalf("Hot: %v", err)
	}
	if song == nil || song.ID != "MOCK:1" {
		t.Fatalf("hot song = %+v", song)
	}
}

func TestSilentWavHeader(t *testing.T) {
	url := silentWavDataURL(1000)
	if !strings.HasPrefix(url, "data:audio/wav;base64,UklGR") {
		// "RIFF" 的 base64 前缀固定为 UklGR
		t.Fatalf("wav data url header wrong: %.40s", url)
	}
}
