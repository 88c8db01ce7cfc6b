package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/TheHyyy/vibe-music/cache"
	"github.com/TheHyyy/vibe-music/config"
	"github.com/TheHyyy/vibe-music/core/auth"
	"github.com/TheHyyy/vibe-music/core/music"
	"github.com/TheHyyy/vibe-music/core/room"
	"github.com/TheHyyy/vibe-music/logger"
)

// Start 组装并启动 HTTP 服务，阻塞到收到退出信号
func Start(cfg *config.Config) {
	// Redis 只服务歌曲缓存，连不上不阻止启动
	var songCache music.Cache
	if cfg.RedisEnabled {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("Redis连接失败，歌曲缓存停用", logger.ErrorField(err))
		} else {
			logger.Info("Redis连接成功")
			defer cache.CloseRedis()
			songCache = cache.NewSongCache()
		}
	}

	scheduler := room.NewScheduler()
	store := room.NewStore(scheduler, cfg.RoomDestroyGrace)
	hub := room.NewHub()
	go hub.Run()
	defer hub.Stop()

	musicService := music.NewService(cfg, songCache)
	manager := room.NewManager(store, hub, scheduler, musicService, cfg.LeaveGrace)
	issuer := auth.NewIssuer(cfg.JWTSecret)

	roomHandler := NewRoomHandler(manager, issuer)
	songHandler := NewSongHandler(musicService, cfg)
	router := newRouter(roomHandler, songHandler)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("HTTP服务启动", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务启动失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("收到退出信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("优雅关闭失败", logger.ErrorField(err))
	}
	logger.Info("服务已退出")
}

// newRouter 注册全部路由并套上 CORS 中间件
func newRouter(roomHandler *RoomHandler, songHandler *SongHandler) *mux.Router {
	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// 房间相关的API端点
	router.HandleFunc("/api/rooms", roomHandler.ListRoomsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms", roomHandler.CreateRoomHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/join", roomHandler.JoinByCodeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{room_id}/join", roomHandler.JoinByIDHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{room_id}/public", roomHandler.PublicInfoHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{room_id}/state", roomHandler.StateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{room_id}/settings", roomHandler.SettingsHandler).Methods(http.MethodPatch)
	router.HandleFunc("/api/rooms/{room_id}/queue", roomHandler.EnqueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{room_id}/queue/{item_id}/votes", roomHandler.VoteHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{room_id}/admin/next", roomHandler.NextHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{room_id}/admin/kick", roomHandler.KickHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{room_id}/ended", roomHandler.EndedHandler).Methods(http.MethodPost)

	// WebSocket 接入
	router.HandleFunc("/ws/rooms/{room_id}", roomHandler.WSHandler)

	// 歌曲相关的API端点
	router.HandleFunc("/api/songs/search", songHandler.SearchHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/url", songHandler.PlayURLHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/lyric", songHandler.LyricHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/config", songHandler.ConfigHandler).Methods(http.MethodGet)

	// 健康检查
	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]string{"status": "up"})
	}).Methods(http.MethodGet)

	return router
}
