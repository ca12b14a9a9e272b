package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const EnvPrefix = "SINGLETON"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySql  MySqlConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Race   RaceConfig   `mapstructure:"race"`
	Soak   SoakConfig   `mapstructure:"soak"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	NodeId string `mapstructure:"node_id"`
}

type MySqlConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RaceConfig struct {
	Policy      string        `mapstructure:"policy"`       // policy name, or "all"
	Threads     int           `mapstructure:"threads"`      // concurrent callers per trial
	Rounds      int           `mapstructure:"rounds"`       // retries when hunting a violation
	Delay       time.Duration `mapstructure:"delay"`        // ms between check and construction
	Timeout     time.Duration `mapstructure:"timeout"`      // ms before a trial is declared hung
	MaxParallel int           `mapstructure:"max_parallel"` // policies raced at the same time
	Server      string        `mapstructure:"server"`       // base url of a remote server, empty runs locally
}

type SoakConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Policies     []string      `mapstructure:"policies"`
	Interval     time.Duration `mapstructure:"interval"` // seconds, used when Cron is empty
	Cron         string        `mapstructure:"cron"`
	Threads      int           `mapstructure:"threads"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	Distributed  bool          `mapstructure:"distributed"`   // lock each tick across nodes through redis
	LockerExpiry time.Duration `mapstructure:"locker_expiry"` // seconds
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// NewViper returns a viper instance with defaults and SINGLETON_* env overrides,
// ready for flags to be bound onto it.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("race.policy", "all")
	v.SetDefault("race.threads", 100)
	v.SetDefault("race.rounds", 20)
	v.SetDefault("race.delay", 10)
	v.SetDefault("race.timeout", 10000)
	v.SetDefault("race.max_parallel", 4)
	v.SetDefault("race.server", "")
	v.SetDefault("soak.enabled", false)
	v.SetDefault("soak.interval", 60)
	v.SetDefault("soak.threads", 100)
	v.SetDefault("soak.key_prefix", "singleton")
	v.SetDefault("soak.locker_expiry", 30)
	v.SetDefault("log.level", "info")
	return v
}

func Load(configPath string) (*Config, error) {
	return LoadFrom(NewViper(), configPath)
}

// LoadFrom reads configPath (if any) into v and decodes the result. An empty
// path yields defaults plus whatever env or bound flags provide.
func LoadFrom(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		unitlessDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, err
	}

	cfg.Race.Delay *= time.Millisecond
	cfg.Race.Timeout *= time.Millisecond
	cfg.Soak.Interval *= time.Second
	cfg.Soak.LockerExpiry *= time.Second

	if cfg.Race.Threads <= 0 {
		cfg.Race.Threads = 100
	}
	if cfg.Race.Rounds <= 0 {
		cfg.Race.Rounds = 1
	}
	if cfg.Race.Timeout <= 0 {
		cfg.Race.Timeout = 10 * time.Second
	}
	if cfg.Race.MaxParallel <= 0 {
		cfg.Race.MaxParallel = 1
	}
	if cfg.Soak.Threads <= 0 {
		cfg.Soak.Threads = cfg.Race.Threads
	}

	if cfg.Server.NodeId == "" {
		hostname, _ := os.Hostname()
		cfg.Server.NodeId = hostname + "-" + uuid.New().String()[:8]
	}

	globalConfig = &cfg
	return &cfg, nil
}

// unitlessDurationHook reads a bare number such as SINGLETON_RACE_DELAY=5 as a
// count, scaled to its unit below like yaml and flag values are. Strings with a
// unit are rejected since the scaling would apply twice.
func unitlessDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(data.(string)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("duration must be a whole number in the key's unit, got %q", data)
		}
		return time.Duration(n), nil
	}
}

func Get() *Config {
	return globalConfig
}

// SetConfig sets the global config (used for testing)
func SetConfig(cfg *Config) {
	globalConfig = cfg
}
