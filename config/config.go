// config.go

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 服务器配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Pool     PoolConfig     `mapstructure:"pool"`
	PvP      PvPConfig      `mapstructure:"pvp"`
}

// ServerConfig 服务器基本配置
type ServerConfig struct {
	GamePort    int    `mapstructure:"game_port"`
	GatewayPort int    `mapstructure:"gateway_port"`
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"`
	// 每个IP每分钟允许的请求数
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 令牌校验配置
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// CombatConfig PvE战斗参数
type CombatConfig struct {
	DeathCooldownSeconds int     `mapstructure:"death_cooldown_seconds"`
	InstantResurrectGems int     `mapstructure:"instant_resurrect_gems"`
	BaseCritChance       float64 `mapstructure:"base_crit_chance"`
}

// PoolConfig 战斗池参数
type PoolConfig struct {
	StandardTiers      []string `mapstructure:"standard_tiers"`
	BossRaidCount      int      `mapstructure:"boss_raid_count"`
	CompletedRetention int      `mapstructure:"completed_retention"`
	UpkeepCron         string   `mapstructure:"upkeep_cron"`
}

// PvPConfig 决斗参数
type PvPConfig struct {
	ChallengeTTLMinutes   int `mapstructure:"challenge_ttl_minutes"`
	MinStake              int `mapstructure:"min_stake"`
	DeclinePenaltyPercent int `mapstructure:"decline_penalty_percent"`
	CleanupDelaySeconds   int `mapstructure:"cleanup_delay_seconds"`
	// 0 表示不限制出招时间
	ActionTimeoutSeconds int `mapstructure:"action_timeout_seconds"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig Config
)

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("无法读取配置文件: %w", err)
	}

	if err := v.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("无法解析配置文件: %w", err)
	}

	return nil
}

// Default 返回只包含默认值的配置，测试和内存模式使用
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.game_port", 8081)
	v.SetDefault("server.gateway_port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.rate_limit_per_minute", 120)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("auth.issuer", "pixelstorm-arena")

	v.SetDefault("combat.death_cooldown_seconds", 900)
	v.SetDefault("combat.instant_resurrect_gems", 50)
	v.SetDefault("combat.base_crit_chance", 0.10)

	v.SetDefault("pool.standard_tiers", []string{"easy", "medium", "hard|epic"})
	v.SetDefault("pool.boss_raid_count", 1)
	v.SetDefault("pool.completed_retention", 20)
	v.SetDefault("pool.upkeep_cron", "0 */1 * * * *")

	v.SetDefault("pvp.challenge_ttl_minutes", 15)
	v.SetDefault("pvp.min_stake", 10)
	v.SetDefault("pvp.decline_penalty_percent", 10)
	v.SetDefault("pvp.cleanup_delay_seconds", 10)
	v.SetDefault("pvp.action_timeout_seconds", 0)
}

// GetDSN 获取PostgreSQL连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr 获取Redis连接地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DeathCooldown 阵亡冷却时长
func (c *CombatConfig) DeathCooldown() time.Duration {
	return time.Duration(c.DeathCooldownSeconds) * time.Second
}

// ChallengeTTL 挑战有效期
func (c *PvPConfig) ChallengeTTL() time.Duration {
	return time.Duration(c.ChallengeTTLMinutes) * time.Minute
}

// CleanupDelay 战斗结束后保留时长
func (c *PvPConfig) CleanupDelay() time.Duration {
	return time.Duration(c.CleanupDelaySeconds) * time.Second
}

// ActionTimeout 出招超时，0表示不限制
func (c *PvPConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}
