package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheHyyy/vibe-music/config"
	"github.com/TheHyyy/vibe-music/logger"
	"github.com/TheHyyy/vibe-music/server"
)

var rootCmd = &cobra.Command{
	Use:   "vibe-music",
	Short: "Vibe Music 是一个多人实时点歌房服务。",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		initLogger(cfg)
		server.Start(cfg)
	},
}

func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
