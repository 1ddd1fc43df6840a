package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"5000"`
		Origin string `env:"ORIGIN" envDefault:"*"`
	}

	Telegram struct {
		BotToken       string        `env:"BOT_TOKEN,required"`
		BootstrapAdmin string        `env:"BOOTSTRAP_ADMIN,required"`
		PollTimeout    time.Duration `env:"POLL_TIMEOUT" envDefault:"10s"`
		SendTimeout    time.Duration `env:"SEND_TIMEOUT" envDefault:"5s"`
	}

	Store struct {
		// Бэкенд хранилища: file или redis
		Backend string `env:"STORE_BACKEND" envDefault:"file"`
		File    string `env:"STORE_FILE" envDefault:"data.json"`

		RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
		RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
		RedisKey      string `env:"REDIS_KEY" envDefault:"anonrelay:store"`
	}

	Anon struct {
		Min int `env:"ANON_MIN" envDefault:"1000"`
		Max int `env:"ANON_MAX" envDefault:"99999"`
	}

	LogFile string `env:"LOG_FILE" envDefault:"logs.txt"`

	// Внешний URL эндпоинта /logs для кнопки в админ-панели
	LogsURL   string `env:"LOGS_URL" envDefault:""`
	DonateURL string `env:"DONATE_URL" envDefault:""`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// Игнорируем ошибку, если .env файл не найден
		// В production окружении переменные могут быть установлены напрямую
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
