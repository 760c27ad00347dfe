// Package memory provides an in-process content store
package memory

import (
	"github.com/jrife/tenantkv/storage/overflow"
)

// DriverName is the name under which the plugin is registered
const DriverName = "memory"

// Plugins lists the plugins provided by this package
func Plugins() []overflow.Plugin {
	return []overflow.Plugin{&MemoryPlugin{}}
}

// MemoryPlugin creates in-memory content stores
type MemoryPlugin struct {
}

// Name implements overflow.Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return DriverName
}

// NewStore implements overflow.Plugin.NewStore
func (plugin *MemoryPlugin) NewStore(options overflow.Options) (overflow.Store, error) {
	return overflow.NewFakeStore(), nil
}
