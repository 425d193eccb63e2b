// main.go

package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/game"
	"github.com/jacl-coder/PixelStorm-Arena/internal/gateway"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/metrics"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pve"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pvp"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
	"github.com/jacl-coder/PixelStorm-Arena/internal/tasks"
	"github.com/jacl-coder/PixelStorm-Arena/pkg/db"
)

type service interface {
	Start() error
	Stop() error
}

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	serviceType := flag.String("service", "all", "服务类型 (game, gateway, all)")
	storeKind := flag.String("store", "postgres", "存储类型 (postgres, memory)")
	flag.Parse()

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		log.GetLogger().Error("加载配置失败", err, "path", *configPath)
		os.Exit(1)
	}
	cfg := &config.GlobalConfig
	log.Init(cfg.Server.LogLevel, cfg.Server.Environment)
	logger := log.GetLogger()

	runGame, runGateway := false, false
	switch *serviceType {
	case "game":
		runGame = true
	case "gateway":
		runGateway = true
	case "all":
		runGame, runGateway = true, true
	default:
		logger.Error("未知的服务类型", nil, "service", *serviceType)
		os.Exit(1)
	}

	// 初始化存储
	var st store.Store
	switch *storeKind {
	case "memory":
		st = store.NewMemoryStore()
		logger.Warn("使用内存存储，重启后数据丢失")
	case "postgres":
		if err := db.InitPostgres(&cfg.Database); err != nil {
			logger.Error("初始化PostgreSQL失败", err)
			os.Exit(1)
		}
		defer db.Close()
		st = store.NewPostgresStore(db.DB, logger.With("component", "store"))
	default:
		logger.Error("未知的存储类型", nil, "store", *storeKind)
		os.Exit(1)
	}

	// Redis 只承载排行榜和限流，不可用时降级运行
	var board *models.PvPLeaderboard
	if *storeKind == "postgres" {
		if err := db.InitRedis(&cfg.Redis); err != nil {
			logger.Warn("Redis不可用，排行榜关闭", "error", err)
		} else {
			defer db.CloseRedis()
			board = models.NewPvPLeaderboard(db.RedisClient)
		}
	}

	m := metrics.NewCombatMetrics("pixelstorm", prometheus.DefaultRegisterer)
	calc := combat.NewCalculator(combat.NewTimeSource(), cfg.Combat.BaseCritChance)
	hub := game.NewHub(logger.With("component", "hub"))

	pool := pve.NewPoolManager(st, pve.NewGenerator(calc), cfg.Pool, logger.With("component", "pool"))
	pveService := pve.NewService(st, calc, pool, hub, m, logger.With("component", "pve"), cfg.Combat)

	registry := pvp.NewRegistry(calc, cfg.PvP, m, logger.With("component", "pvp"))
	var duelBoard pvp.Leaderboard
	if board != nil {
		duelBoard = board
	}
	duels := pvp.NewDuelService(st, registry, hub, duelBoard, m, logger.With("component", "duel"), cfg.PvP)

	tokens := gateway.NewTokenManager(cfg.Auth)

	var services []service
	if runGame {
		services = append(services, game.NewGameServer(cfg, game.Deps{
			Hub:     hub,
			Store:   st,
			Tokens:  tokens,
			PvE:     pveService,
			Battles: registry,
			Metrics: m,
			Logger:  logger,
		}))
	}
	if runGateway {
		deps := gateway.Deps{
			PvE:    pveService,
			Duels:  duels,
			Tokens: tokens,
			Logger: logger,
		}
		if board != nil {
			deps.Leaderboard = board
		}
		if db.RedisClient != nil {
			deps.RateCounter = gateway.NewRedisCounter(db.RedisClient)
		}
		services = append(services, gateway.NewGateway(cfg, deps))
	}

	var rebuilder tasks.LeaderboardRebuilder
	if board != nil {
		rebuilder = board
	}
	scheduler := tasks.NewScheduler(cfg, st, pool, registry, rebuilder, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("启动定时任务失败", err)
		os.Exit(1)
	}
	// 启动时先补一次战斗池
	scheduler.EnsurePool()

	for _, svc := range services {
		if err := svc.Start(); err != nil {
			logger.Error("启动服务失败", err)
			os.Exit(1)
		}
	}
	logger.Info("服务已启动", "service", *serviceType, "store", *storeKind)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("接收到关闭信号，正在关闭服务器...")
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(); err != nil {
			logger.Error("关闭服务失败", err)
		}
	}
	scheduler.Stop()
	hub.CloseAll()
	logger.Info("服务器已安全关闭")
}
