package config

import (
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch re-reads the config file whenever it changes and hands the result to
// onReload. Only settings the caller chooses to apply take effect live; the
// database and object store connections are not rebuilt on reload.
func Watch(path string, onReload func(*PipelineConfig)) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.Fatal(err)
	}

	err = watcher.Add(path)
	if err != nil {
		logrus.Fatal(err)
	}

	go func() {
		debounced := debounce.New(1 * time.Second)
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				debounced(func() {
					logrus.Info("Config file change detected - reloading")
					c, err := Load(path)
					if err != nil {
						logrus.Error("Error reloading configuration - ignoring")
						logrus.Error(err)
						return
					}
					onReload(c)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Error("error in config watcher:", err)
			}
		}
	}()

	return watcher
}
