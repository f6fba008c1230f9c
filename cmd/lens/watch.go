/*
DESCRIPTION
  watch.go provides loading of config variables from a YAML file and
  reloading them when the file changes.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ausocean/utils/logging"
)

// loadVars reads config variables from a YAML mapping of variable names to
// scalar values, e.g.
//
//	Position: front
//	Zoom: 2.5
//	ShutterAudible: true
func loadVars(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	var raw map[string]interface{}
	err = yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}

	vars := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return nil, fmt.Errorf("config variable %s is not a scalar", k)
		case nil:
			vars[k] = ""
		default:
			vars[k] = fmt.Sprint(v)
		}
	}
	return vars, nil
}

// watch calls apply with the variables in the file at path whenever it is
// written, until ctx is done. The directory is watched so that files
// replaced by editors are seen.
func watch(ctx context.Context, l logging.Logger, path string, apply func(map[string]string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create watcher: %w", err)
	}
	defer w.Close()

	path = filepath.Clean(path)
	err = w.Add(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("could not watch %s: %w", path, err)
	}
	l.Debug("watching config file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			vars, err := loadVars(path)
			if err != nil {
				l.Warning("could not reload config file", "path", path, "error", err)
				continue
			}
			l.Info("config file changed", "path", path)
			apply(vars)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warning("config watcher error", "error", err)
		}
	}
}
