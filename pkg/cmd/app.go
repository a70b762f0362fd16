// Package cmd contains the CLI command implementations: sync, search,
// list, and stats.
package cmd

import (
	"github.com/cortexlog/cortexlog/pkg/config"
	"github.com/cortexlog/cortexlog/pkg/store"
)

// App bundles the dependencies every command needs: the loaded
// configuration and the opened storage engine. main.go constructs one App
// per process invocation and passes it to each command factory; the root
// command's PersistentPreRunE then fills in its Config and Store.
type App struct {
	Config *config.Config
	Store  *store.Store
}
