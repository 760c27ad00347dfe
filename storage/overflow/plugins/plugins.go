package plugins

import (
	"github.com/jrife/tenantkv/storage/overflow"
	"github.com/jrife/tenantkv/storage/overflow/plugins/ipfs"
	"github.com/jrife/tenantkv/storage/overflow/plugins/memory"
	"github.com/jrife/tenantkv/storage/overflow/plugins/s3"
)

var plugins []overflow.Plugin

func init() {
	plugins = append(plugins, ipfs.Plugins()...)
	plugins = append(plugins, s3.Plugins()...)
	plugins = append(plugins, memory.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) overflow.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []overflow.Plugin {
	return plugins
}
