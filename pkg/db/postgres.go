package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	_ "github.com/lib/pq"
)

var (
	// DB 全局数据库连接实例
	DB *sql.DB
)

// InitPostgres 按配置打开PostgreSQL连接池并探活
func InitPostgres(cfg *config.DatabaseConfig) error {
	conn, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.MaxConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxConns)
		conn.SetMaxIdleConns(max(1, cfg.MaxConns/2))
	}
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("数据库Ping失败: %w", err)
	}

	DB = conn
	log.GetLogger().Info("成功连接到PostgreSQL数据库", "host", cfg.Host, "dbname", cfg.DBName)
	return nil
}

// Close 关闭数据库连接
func Close() {
	if DB != nil {
		DB.Close()
		log.GetLogger().Info("数据库连接已关闭")
	}
}
