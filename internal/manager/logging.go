package manager

import (
	"github.com/rs/zerolog"
)

// zlog is the package logger. Disabled until SetLogger installs one.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the manager.
func SetLogger(l zerolog.Logger) { zlog = l }
