package plugins

import (
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/plugins/bbolt"
	"github.com/jrife/tenantkv/storage/kv/plugins/etcd"
	"github.com/jrife/tenantkv/storage/kv/plugins/memory"
	"github.com/jrife/tenantkv/storage/kv/plugins/redis"
)

var plugins []kv.Plugin

func init() {
	plugins = append(plugins, redis.Plugins()...)
	plugins = append(plugins, etcd.Plugins()...)
	plugins = append(plugins, bbolt.Plugins()...)
	plugins = append(plugins, memory.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) kv.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []kv.Plugin {
	return plugins
}
