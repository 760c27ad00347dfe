// Package memory provides an in-process kv backend. Its
// contents are lost when the process exits.
package memory

import (
	"github.com/jrife/tenantkv/storage/kv"
)

const (
	// DriverName is the name under which the plugin is registered
	DriverName = "memory"
)

// Plugins lists the plugins provided by this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&MemoryPlugin{},
	}
}

// MemoryPlugin creates in-memory backends
type MemoryPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return DriverName
}

// NewBackend implements kv.Plugin.NewBackend
func (plugin *MemoryPlugin) NewBackend(options kv.PluginOptions) (kv.Backend, error) {
	return kv.NewFakeBackend(nil), nil
}

// NewTempBackend implements kv.Plugin.NewTempBackend
func (plugin *MemoryPlugin) NewTempBackend() (kv.Backend, error) {
	return plugin.NewBackend(kv.PluginOptions{})
}
