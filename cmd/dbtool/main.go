// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/gateway"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
	"github.com/jacl-coder/PixelStorm-Arena/pkg/db"
)

// testPlayers 测试账号
var testPlayers = []models.Player{
	{Username: "alice", Level: 5, Gold: 1000, Gems: 100, Stamina: 100, StaminaMax: 100, BaseHP: 100, Attack: 30, Defense: 12},
	{Username: "bob", Level: 5, Gold: 1000, Gems: 100, Stamina: 100, StaminaMax: 100, BaseHP: 110, Attack: 26, Defense: 14},
	{Username: "carol", Level: 12, Gold: 5000, Gems: 300, Stamina: 120, StaminaMax: 120, BaseHP: 160, Attack: 48, Defense: 22},
	{Username: "dave", Level: 1, Gold: 100, Stamina: 100, StaminaMax: 100, BaseHP: 100, Attack: 15, Defense: 8},
}

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	action := flag.String("action", "help", "操作类型: reset, init, seed, help")
	flag.Parse()

	if *action == "help" {
		showHelp()
		return
	}

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		fatal("加载配置失败", err)
	}
	cfg := &config.GlobalConfig
	log.Init(cfg.Server.LogLevel, cfg.Server.Environment)

	// 初始化数据库连接
	if err := db.InitPostgres(&cfg.Database); err != nil {
		fatal("初始化PostgreSQL失败", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch *action {
	case "reset":
		log.GetLogger().Warn("正在重置数据库，这将删除所有表和数据")
		if err := db.DropAllTables(ctx); err != nil {
			fatal("重置数据库失败", err)
		}
		log.GetLogger().Info("数据库重置完成")
	case "init":
		if err := db.InitAllTables(ctx); err != nil {
			fatal("初始化数据库表失败", err)
		}
		log.GetLogger().Info("数据库表初始化完成")
	case "seed":
		if err := db.InitAllTables(ctx); err != nil {
			fatal("初始化数据库表失败", err)
		}
		if err := seed(ctx, cfg); err != nil {
			fatal("写入测试数据失败", err)
		}
	default:
		fatal("未知操作", fmt.Errorf("%s", *action))
	}
}

// seed 写入测试账号并打印对应的开发令牌
func seed(ctx context.Context, cfg *config.Config) error {
	logger := log.GetLogger()
	st := store.NewPostgresStore(db.DB, logger)
	tokens := gateway.NewTokenManager(cfg.Auth)

	created := make([]models.Player, 0, len(testPlayers))
	err := st.InTx(ctx, func(tx store.Tx) error {
		for _, p := range testPlayers {
			player := p
			if err := tx.CreatePlayer(ctx, &player); err != nil {
				return fmt.Errorf("创建玩家 %s: %w", p.Username, err)
			}
			created = append(created, player)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range created {
		token, err := tokens.Issue(p.ID)
		if err != nil {
			return err
		}
		logger.Info("测试账号已创建", "id", p.ID, "username", p.Username, "level", p.Level)
		fmt.Printf("%s\t%d\t%s\n", p.Username, p.ID, token)
	}
	return nil
}

func fatal(msg string, err error) {
	log.GetLogger().Error(msg, err)
	os.Exit(1)
}

// showHelp 显示帮助信息
func showHelp() {
	fmt.Println("PixelStorm Arena 数据库管理工具")
	fmt.Println("")
	fmt.Println("用法:")
	fmt.Println("  go run ./cmd/dbtool -action=<操作> [-config=<配置文件>]")
	fmt.Println("")
	fmt.Println("操作:")
	fmt.Println("  reset  - 删除所有表和数据")
	fmt.Println("  init   - 创建表结构")
	fmt.Println("  seed   - 创建表结构并写入测试账号，输出开发令牌")
	fmt.Println("  help   - 显示此帮助信息")
}
