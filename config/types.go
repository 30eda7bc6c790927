package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Validator is implemented by config structs with checks beyond struct tags.
type Validator interface {
	Validate() error
}

type ConfigInterface interface {
	Bind(instance any) error
	BindWithDefaults(instance any) error
	Validate(instance any) error
	Export(path string) error
	Snapshot() (map[string]any, error)
	Restore() error
}

type Config struct {
	instance   *viper.Viper
	opts       ConfigOptions
	validate   *validator.Validate
	watchOnce  sync.Once
	watchMutex sync.RWMutex
	snapshot   map[string]any
}

type ConfigOptions struct {
	BasePath  string
	FileName  string
	FileType  string
	EnvPrefix string
	WatchAble bool
	OnChange  func(e fsnotify.Event)
	// AllowMissing starts from an empty config when no file is found.
	AllowMissing bool
}
