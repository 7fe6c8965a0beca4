package internal

import "time"

// Config is read from the environment at startup. Required values fail
// fast; the process never starts half-configured.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	JWTSecret        string        `env:"JWT_SECRET,required=true"`
	SessionFallback  bool          `env:"SESSION_FALLBACK,default=true"`
	BadgerFilepath   string        `env:"BADGER_FILEPATH,required=true"`
	RedisAddr        string        `env:"REDIS_ADDR,required=true"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB,default=0"`
	PresenceTTL      time.Duration `env:"PRESENCE_TTL,default=90s"`
	TypingTTL        time.Duration `env:"TYPING_TTL,default=10s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT,default=120s"`
	ModerationFile   string        `env:"MODERATION_FILE"`
	ModerationChar   string        `env:"MODERATION_CHARACTER,default=*"`
	DebugEndpoint    bool          `env:"DEBUG_ENDPOINT,default=false"`
	ShutdownDeadline time.Duration `env:"SHUTDOWN_DEADLINE,default=10s"`
}
