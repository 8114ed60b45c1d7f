package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 配置键与环境变量同名。
const (
	KeyPort                 = "PORT"
	KeyListenAddr           = "LISTEN_ADDR"
	KeyDatabasePath         = "DATABASE_PATH"
	KeyGinMode              = "GIN_MODE"
	KeySessionSecret        = "SESSION_SECRET"
	KeyLogLevel             = "LOG_LEVEL"
	KeyLogFormat            = "LOG_FORMAT"
	KeySiteTimezone         = "SITE_TIMEZONE"
	KeyStorageMode          = "STORAGE_MODE"
	KeyStorageTimeout       = "STORAGE_TIMEOUT"
	KeyFallbackCapacity     = "FALLBACK_CAPACITY"
	KeyFeedbackLimit        = "FEEDBACK_LIMIT"
	KeyFeedbackWindow       = "FEEDBACK_WINDOW"
	KeyFeedbackSalt         = "FEEDBACK_SALT"
	KeyWriteRatePerMinute   = "WRITE_RATE_PER_MINUTE"
	KeyWriteBurst           = "WRITE_BURST"
	KeyRecentViewsSchedule  = "RECENT_VIEWS_SCHEDULE"
	KeyAttemptPruneSchedule = "ATTEMPT_PRUNE_SCHEDULE"

	// KeyConfigFile 指向可选的配置文件 (yaml/json/toml)，环境变量优先于文件。
	KeyConfigFile = "SITEPULSE_CONFIG"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string
	Port          string
	DatabasePath  string
	SessionSecret string
	GinMode       string
	LogLevel      string
	LogFormat     string
	Location      *time.Location

	StorageMode      string
	StorageTimeout   time.Duration
	FallbackCapacity int

	FeedbackLimit  int
	FeedbackWindow time.Duration
	FeedbackSalt   string

	WriteRatePerMinute int
	WriteBurst         int

	RecentViewsSchedule  string
	AttemptPruneSchedule string
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault(KeyPort, "8080")
	vp.SetDefault(KeyDatabasePath, "data/sitepulse.db")
	vp.SetDefault(KeyGinMode, "release")
	vp.SetDefault(KeySessionSecret, "sitepulse-dev-secret")
	vp.SetDefault(KeyLogLevel, "info")
	vp.SetDefault(KeyLogFormat, "text")
	vp.SetDefault(KeySiteTimezone, "Local")
	vp.SetDefault(KeyStorageMode, "auto")
	vp.SetDefault(KeyStorageTimeout, "2s")
	vp.SetDefault(KeyFallbackCapacity, 10000)
	vp.SetDefault(KeyFeedbackLimit, 3)
	vp.SetDefault(KeyFeedbackWindow, "24h")
	vp.SetDefault(KeyFeedbackSalt, "sitepulse-feedback")
	vp.SetDefault(KeyWriteRatePerMinute, 120)
	vp.SetDefault(KeyWriteBurst, 20)
	vp.SetDefault(KeyRecentViewsSchedule, "@every 15m")
	vp.SetDefault(KeyAttemptPruneSchedule, "@hourly")
}

// Load 从环境变量 (以及可选的配置文件) 读取应用配置，并为缺失项提供默认值。
func Load() (AppConfig, error) {
	vp := viper.New()
	setDefaults(vp)
	vp.AutomaticEnv()

	if file := strings.TrimSpace(vp.GetString(KeyConfigFile)); file != "" {
		vp.SetConfigFile(file)
		if err := vp.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	return FromViper(vp)
}

// FromViper 将 viper 中的值整理为 AppConfig。
func FromViper(vp *viper.Viper) (AppConfig, error) {
	str := func(key string) string {
		value := strings.TrimSpace(vp.GetString(key))
		if value == "" {
			// 空字符串的环境变量同样回退到默认值
			value = strings.TrimSpace(fmt.Sprint(defaultOf(key)))
		}
		return value
	}

	cfg := AppConfig{
		Port:                 str(KeyPort),
		ListenAddr:           strings.TrimSpace(vp.GetString(KeyListenAddr)),
		DatabasePath:         str(KeyDatabasePath),
		SessionSecret:        str(KeySessionSecret),
		GinMode:              str(KeyGinMode),
		LogLevel:             str(KeyLogLevel),
		LogFormat:            str(KeyLogFormat),
		StorageMode:          str(KeyStorageMode),
		FallbackCapacity:     vp.GetInt(KeyFallbackCapacity),
		FeedbackLimit:        vp.GetInt(KeyFeedbackLimit),
		FeedbackSalt:         str(KeyFeedbackSalt),
		WriteRatePerMinute:   vp.GetInt(KeyWriteRatePerMinute),
		WriteBurst:           vp.GetInt(KeyWriteBurst),
		RecentViewsSchedule:  str(KeyRecentViewsSchedule),
		AttemptPruneSchedule: str(KeyAttemptPruneSchedule),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%s", cfg.Port)
	}

	var err error
	if cfg.StorageTimeout, err = parseDuration(str(KeyStorageTimeout)); err != nil {
		return AppConfig{}, fmt.Errorf("%s: %w", KeyStorageTimeout, err)
	}
	if cfg.FeedbackWindow, err = parseDuration(str(KeyFeedbackWindow)); err != nil {
		return AppConfig{}, fmt.Errorf("%s: %w", KeyFeedbackWindow, err)
	}

	if cfg.Location, err = time.LoadLocation(str(KeySiteTimezone)); err != nil {
		return AppConfig{}, fmt.Errorf("%s: %w", KeySiteTimezone, err)
	}

	return cfg, nil
}

var defaults = func() *viper.Viper {
	vp := viper.New()
	setDefaults(vp)
	return vp
}()

func defaultOf(key string) interface{} {
	return defaults.Get(key)
}

func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", raw)
	}
	return d, nil
}
