// Package watcher adapts recursive fsnotify subscriptions to the raw change
// events consumed by the mirroring engine.
package watcher
