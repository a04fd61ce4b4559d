// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/forge/internal/adapters/cache"
	_ "go.trai.ch/forge/internal/adapters/config"
	_ "go.trai.ch/forge/internal/adapters/dispatch"
	_ "go.trai.ch/forge/internal/adapters/logger"
	_ "go.trai.ch/forge/internal/adapters/registry"
	_ "go.trai.ch/forge/internal/adapters/runstore"
	_ "go.trai.ch/forge/internal/adapters/shell"
	_ "go.trai.ch/forge/internal/adapters/telemetry"
	_ "go.trai.ch/forge/internal/adapters/vault"
	// Register pipeline nodes.
	_ "go.trai.ch/forge/internal/manifest"
	_ "go.trai.ch/forge/internal/patch"
	_ "go.trai.ch/forge/internal/stages"
	// Register app and engine nodes.
	_ "go.trai.ch/forge/internal/app"
	_ "go.trai.ch/forge/internal/engine/orchestrator"
)
