package env_mode

import (
	"os"
	"strings"
	"sync"
)

// ENV_MODE_KEY selects which config.<env>.yaml overlay is loaded.
const ENV_MODE_KEY = "IMGCOMPRESS_ENV"

type ENV_MODE string

const (
	DevMode  ENV_MODE = "development"
	ProMode  ENV_MODE = "production"
	TestMode ENV_MODE = "test"
)

var (
	currentEnv ENV_MODE
	modeMu     sync.RWMutex
)

func ParseEnv(env string) ENV_MODE {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "pro":
		return ProMode
	case "test", "testing":
		return TestMode
	default:
		return DevMode
	}
}

// Mode returns the active mode. An explicit SetMode wins over the environment.
func Mode() ENV_MODE {
	modeMu.RLock()
	defer modeMu.RUnlock()
	if currentEnv != "" {
		return currentEnv
	}
	return ParseEnv(os.Getenv(ENV_MODE_KEY))
}

func SetMode(mode ENV_MODE) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentEnv = mode
}
