package audit

// Backend names accepted by AUDIT_BACKEND.
const (
	BackendNone  = "none"
	BackendLog   = "log"
	BackendRedis = "redis"
)

// Config contains audit dispatcher settings.
type Config struct {
	Backend        string `env:"AUDIT_BACKEND"          envDefault:"log"`
	BufferSize     int    `env:"AUDIT_BUFFER_SIZE"      envDefault:"1024"`
	WriteTimeoutMs int    `env:"AUDIT_WRITE_TIMEOUT_MS" envDefault:"2000"`
}
