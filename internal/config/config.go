// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密码、密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test" // 测试环境（集成测试 + E2E 共用）
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Push     PushConfig     `yaml:"push"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	// Driver 取值 postgres 或 sqlite
	Driver  string `yaml:"driver"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
	// Path SQLite 数据库文件路径（driver=sqlite 时生效）
	Path string `yaml:"path"`
}

type RedisConfig struct {
	// Enabled 为 false 时推送只在本副本内直投
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DB      int    `yaml:"db"`
}

// MinIOConfig 对象存储配置，Endpoint 为空表示未启用文档上传
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// AccessTokenTTL / RefreshTokenTTL 令牌有效期
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	// AdminEmail / AdminPassword 首次启动时引导创建的管理员账号
	AdminEmail    string `yaml:"-"`
	AdminPassword string `yaml:"-"`
	// JWTSecret 为空时禁用鉴权（仅限开发环境）
	JWTSecret string `yaml:"-"`
}

// PushConfig WebSocket 推送配置
type PushConfig struct {
	// MaxConnsPerUser 单用户最大并发连接数，超出时淘汰最旧连接
	MaxConnsPerUser int `yaml:"max_conns_per_user"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env         Environment
	APIPort     string
	Database    DatabaseConfig
	DatabaseURL string
	RedisURL    string
	Redis       RedisConfig
	MinIO       MinIOConfig
	Auth        AuthConfig
	Push        PushConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	// 从环境变量获取敏感信息
	dbPassword := getEnv("DB_PASSWORD", "leave_dev_password")
	yamlCfg.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", "")
	yamlCfg.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", "")
	yamlCfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	yamlCfg.Auth.AdminEmail = getEnv("ADMIN_EMAIL", "")
	yamlCfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", "")

	cfg := &Config{
		Env:         env,
		APIPort:     getEnv("API_PORT", yamlCfg.Server.Port),
		Database:    yamlCfg.Database,
		DatabaseURL: buildDatabaseURL(yamlCfg.Database, dbPassword),
		RedisURL:    buildRedisURL(yamlCfg.Redis),
		Redis:       yamlCfg.Redis,
		MinIO:       yamlCfg.MinIO,
		Auth:        yamlCfg.Auth,
		Push:        yamlCfg.Push,
	}

	cfg.validate()
	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "leave", Name: "leave_admin", SSLMode: "disable"},
		Redis:    RedisConfig{Enabled: false, Host: "localhost", Port: 6379, DB: 0},
		MinIO:    MinIOConfig{Bucket: "leave-admin"},
		Auth:     AuthConfig{AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 7 * 24 * time.Hour},
		Push:     PushConfig{MaxConnsPerUser: 8},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 环境变量覆盖数据库驱动（测试常用 DB_DRIVER=sqlite）
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled, _ = strconv.ParseBool(v)
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		cfg.MinIO.Endpoint = endpoint
	}

	return cfg
}

// buildDatabaseURL 构建 PostgreSQL 连接字符串
func buildDatabaseURL(db DatabaseConfig, password string) string {
	if db.Driver == "sqlite" {
		return db.Path
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
}

// buildRedisURL 构建 Redis 连接字符串
func buildRedisURL(redis RedisConfig) string {
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// AuthEnabled 是否启用鉴权
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, DB: %s, Redis: %s, Auth: %v}",
		c.Env, maskPassword(c.DatabaseURL), c.RedisURL, c.AuthEnabled())
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// validate 验证并填充默认值
func (c *Config) validate() {
	if c.APIPort == "" {
		c.APIPort = "8080"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Push.MaxConnsPerUser <= 0 {
		c.Push.MaxConnsPerUser = 8
	}
}
