package music

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newNeteaseTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cloudsearch", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keywords") == "" {
			http.Error(w, "missing keywords", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"code":200,"result":{"songs":[
			{"id":123456,"name":"晴天","dt":269000,
			 "ar":[{"name":"周杰伦"}],
			 "al":{"picUrl":"http://img.example/cover.jpg"}}
		]}}`))
	})
	mux.HandleFunc("/song/url/v1", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "123456":
			w.Write([]byte(`{"code":200,"data":[{"url":"http://cdn.example/song.mp3"}]}`))
		case "404404":
			w.Write([]byte(`{"code":200,"data":[{"url":""}]}`))
		default:
			w.Write([]byte(`{"code":404,"data":[]}`))
		}
	})
	mux.HandleFunc("/lyric", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"lrc":{"lyric":"[00:00.00]故事的小黄花\n"}}`))
	})
	return httptest.NewServer(mux)
}

func TestNeteaseSearchMapping(t *testing.T) {
	ts := newNeteaseTestServer(t)
	defer ts.Close()

	p := NewNeteaseProvider(ts.URL, "")
	songs, err := p.Search(context.Background(), "晴天")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(songs) != 1 {
		t.Fatalf("result count = %d, want 1", len(songs))
	}

	song := songs[0]
	if song.ID != "NETEASE:123456" {
		t.Fatalf("id = %s", song.ID)
	}
	if song.Title != "晴天" || song.Artist != "周杰伦" {
		t.Fatalf("title/artist = %s / %s", song.Title, song.Artist)
	}
	if song.DurationSec != 269 {
		t.Fatalf("durationSec = %d, want 269 (毫秒转秒)", song.DurationSec)
	}
	if song.Source != "NETEASE" {
		t.Fatalf("source = %s", song.Source)
	}
}

func TestNeteasePlayURL(t *testing.T) {
	ts := newNeteaseTestServer(t)
	defer ts.Close()

	p := NewNeteaseProvider(ts.URL, "")
	ctx := context.Background()

	url, err := p.PlayURL(ctx, "NETEASE:123456")
	if err != nil {
		t.Fatalf("PlayURL: %v", err)
	}
	if url != "http://cdn.example/song.mp3" {
		t.Fatalf("url = %s", url)
	}

	// 空URL视为版权限制
	if _, err := p.PlayURL(ctx, "NETEASE:404404"); err == nil {
		t.Fatal("empty url accepted")
	}
	// 非数字ID直接拒绝，不发请求
	if _, err := p.PlayURL(ctx, "NETEASE:abc"); err == nil {
		t.Fatal("non-numeric id accepted")
	}
}

func TestNeteaseLyric(t *testing.T) {
	ts := newNeteaseTestServer(t)
	defer ts.Close()

	p := NewNeteaseProvider(ts.URL, "")
	lyric, err := p.Lyric(context.Background(), "NETEASE:123456")
	if err != nil {
		t.Fatalf("Lyric: %v", err)
	}
	if lyric == "" {
		t.Fatal("empty lyric")
	}
}

func TestNeteaseCookieNormalization(t *testing.T) {
	longToken := "0123456789abcdef0123456789abcdef0123456789abcdef012"
	p := NewNeteaseProvider("http://localhost:3000", longToken)
	if p.cookie != "MUSIC_U="+longToken {
		t.Fatalf("bare token not normalized: %s", p.cookie)
	}

	// 已是 key=value 形式的不动
	p = NewNeteaseProvider("http://localhost:3000", "MUSIC_U=abc")
	if p.cookie != "MUSIC_U=abc" {
		t.Fatalf("cookie mangled: %s", p.cookie)
	}
}
