package logger

import (
	"log/slog"
	"sync"
)

var mu sync.RWMutex

// Configure replaces the global logger. Used by the CLI once configuration is loaded.
func Configure(config Config) *slog.Logger {
	l := newLogger(config)
	mu.Lock()
	Logger = l
	mu.Unlock()
	return l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return Logger
}
