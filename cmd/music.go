package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheHyyy/vibe-music/config"
	"github.com/TheHyyy/vibe-music/core/music"
)

var musicCmd = &cobra.Command{
	Use:   "music [关键字]",
	Short: "音乐来源连通性测试",
	Long:  `按配置的音乐来源执行一次搜索，检查来源服务是否可用。`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		initLogger(cfg)
		service := music.NewService(cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		query := args[0]
		fmt.Printf("搜索: %q (来源模式: %s)\n", query, cfg.ProviderMode)

		songs, err := service.Search(ctx, query)
		if err != nil {
			log.Fatalf("搜索失败: %v", err)
		}
		if len(songs) == 0 {
			fmt.Println("没有搜到结果")
			return
		}
		for i, s := range songs {
			fmt.Printf("%2d. [%s] %s - %s (%ds)\n", i+1, s.ID, s.Title, s.Artist, s.DurationSec)
		}
	},
}

func init() {
	rootCmd.AddCommand(musicCmd)
}
