package cmd

import (
	"github.com/spf13/cobra"

	"github.com/TheHyyy/vibe-music/config"
	"github.com/TheHyyy/vibe-music/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动点歌房服务器",
	Long:  `启动 Vibe Music 的HTTP服务器，提供房间管理、点歌队列和WebSocket实时同步`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		initLogger(cfg)
		server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
