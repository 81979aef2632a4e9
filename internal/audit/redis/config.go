package redis

// Config contains Redis stream settings for the audit writer.
type Config struct {
	Addr     string `env:"AUDIT_REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"AUDIT_REDIS_PASSWORD"`
	DB       int    `env:"AUDIT_REDIS_DB"       envDefault:"0"`
	Stream   string `env:"AUDIT_REDIS_STREAM"   envDefault:"hearth:audit"`
	MaxLen   int64  `env:"AUDIT_REDIS_MAXLEN"   envDefault:"100000"`
}
