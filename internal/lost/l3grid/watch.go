package l3grid

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/lostnav/internal/lost"
)

// WatchMap loads path once, then reloads it whenever the yaml or its image
// changes, calling onChange with each successfully loaded grid. A reload
// that fails is logged and the previous grid stays in use. It runs until ctx
// is cancelled.
//
// The directories holding the files are watched rather than the files, so
// a save that writes a temporary file and renames it over the map is seen,
// and an image renamed in the yaml is picked up on the next reload.
func WatchMap(ctx context.Context, path string, frame lost.FrameID, onChange func(*lost.OccupancyGrid)) error {
	path = filepath.Clean(path)
	g, md, err := loadMap(path, frame)
	if err != nil {
		return err
	}
	onChange(g)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	w := &mapWatch{watcher: watcher, dirs: make(map[string]bool)}
	if err := w.track(path, md.Image); err != nil {
		return err
	}
	opsf("watching map %s for changes", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.names[filepath.Clean(event.Name)] {
				continue
			}
			// A rename over the file arrives as a create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			g, md, err := loadMap(path, frame)
			if md != nil {
				if terr := w.track(path, md.Image); terr != nil {
					opsf("cannot watch map image %s: %v", md.Image, terr)
				}
			}
			if err != nil {
				opsf("map reload of %s failed, keeping previous map: %v", path, err)
				continue
			}
			onChange(g)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			opsf("map watcher error: %v", err)
		}
	}
}

type mapWatch struct {
	watcher *fsnotify.Watcher
	dirs    map[string]bool
	names   map[string]bool
}

// track makes the yaml and image the files whose events trigger a reload,
// adding watches on directories not yet watched.
func (w *mapWatch) track(yamlPath, imagePath string) error {
	names := map[string]bool{
		filepath.Clean(yamlPath):  true,
		filepath.Clean(imagePath): true,
	}
	for name := range names {
		dir := filepath.Dir(name)
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
		diagf("watching directory %s", dir)
	}
	w.names = names
	return nil
}
