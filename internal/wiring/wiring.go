// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/kiln/internal/adapters/cas"
	_ "go.trai.ch/kiln/internal/adapters/compiler"
	_ "go.trai.ch/kiln/internal/adapters/config"
	_ "go.trai.ch/kiln/internal/adapters/fs"
	_ "go.trai.ch/kiln/internal/adapters/linear"
	_ "go.trai.ch/kiln/internal/adapters/lockfile"
	_ "go.trai.ch/kiln/internal/adapters/logger"
	_ "go.trai.ch/kiln/internal/adapters/metrics"
	_ "go.trai.ch/kiln/internal/adapters/registry"
	_ "go.trai.ch/kiln/internal/adapters/watcher"
	// Register app and engine nodes.
	_ "go.trai.ch/kiln/internal/app"
	_ "go.trai.ch/kiln/internal/engine/resolver"
	_ "go.trai.ch/kiln/internal/engine/scheduler"
)
