package server

import (
	"net/http"
	"strings"

	"github.com/TheHyyy/vibe-music/config"
	"github.com/TheHyyy/vibe-music/core/music"
	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/model"
)

// SongHandler 歌曲搜索/播放地址/歌词处理器
type SongHandler struct {
	service *music.Service
	cfg     *config.Config
}

// NewSongHandler 创建歌曲处理器
func NewSongHandler(service *music.Service, cfg *config.Config) *SongHandler {
	return &SongHandler{service: service, cfg: cfg}
}

// SearchHandler 搜索歌曲
func (h *SongHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeOK(w, []model.Song{})
		return
	}

	songs, err := h.service.Search(r.Context(), q)
	if err != nil {
		logger.Error("歌曲搜索失败", logger.String("query", q), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, songs)
}

// PlayURLHandler 获取播放地址
func (h *SongHandler) PlayURLHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "缺少歌曲ID")
		return
	}

	url, err := h.service.PlayURL(r.Context(), id)
	if err != nil {
		logger.Warn("获取播放地址失败", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOK(w, map[string]string{"url": url})
}

// LyricHandler 获取歌词
func (h *SongHandler) LyricHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "缺少歌曲ID")
		return
	}

	lyric, err := h.service.Lyric(r.Context(), id)
	if err != nil {
		logger.Warn("获取歌词失败", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]string{"lyric": lyric})
}

// ConfigHandler 暴露前端需要的服务配置
func (h *SongHandler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{
		"providerMode": h.cfg.ProviderMode,
	})
}
