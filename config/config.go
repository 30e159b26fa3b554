package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	Name           string `mapstructure:"name"`
}

// GameConfig 游戏世界的限制和策略
type GameConfig struct {
	MaxPlayers    int           `mapstructure:"max_players"`
	MaxVehicles   int           `mapstructure:"max_vehicles"`
	StartingMoney int           `mapstructure:"starting_money"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	VehicleTTL    time.Duration `mapstructure:"vehicle_ttl"` // 0 disables the TTL sweep
	Jobs          []JobConfig   `mapstructure:"jobs"`
}

// JobConfig 工作配置
type JobConfig struct {
	Name   string `mapstructure:"name"`
	Salary int    `mapstructure:"salary"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_address", ":3000")
	viper.SetDefault("server.rpc_address", ":3001")
	viper.SetDefault("server.metrics_address", ":9100")
	viper.SetDefault("server.name", "GTA RP Server")
	viper.SetDefault("game.max_players", 50)
	viper.SetDefault("game.max_vehicles", 100)
	viper.SetDefault("game.starting_money", 1000)
	viper.SetDefault("game.idle_timeout", 90*time.Second)
	viper.SetDefault("game.vehicle_ttl", time.Duration(0))

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

// FindJob 按名称查找已配置的工作，未配置的工作返回 false
func (g *GameConfig) FindJob(name string) (JobConfig, bool) {
	for _, job := range g.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return JobConfig{}, false
}
