package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Library — коллекция pipelines, загруженная из директории.
//
// Серверный режим держит определения pipelines в директории
// (PIPELINES_DIR): по одному YAML-файлу на pipeline. Library
// загружается один раз при старте процесса; pipelines неизменяемы
// на протяжении его жизни.
type Library struct {
	byName map[string]*Pipeline
}

// LoadDir загружает все *.yml и *.yaml файлы из директории.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pipelines dir: %w", err)
	}

	lib := &Library{byName: make(map[string]*Pipeline)}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		p, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}

		if _, exists := lib.byName[p.Name]; exists {
			return nil, fmt.Errorf("%w: %s (in %s)", ErrDuplicatePipeline, p.Name, entry.Name())
		}
		lib.byName[p.Name] = p
	}

	return lib, nil
}

// Get возвращает pipeline по имени.
func (l *Library) Get(name string) (*Pipeline, error) {
	p, ok := l.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, name)
	}
	return p, nil
}

// Names возвращает имена pipelines в алфавитном порядке.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.byName))
	for name := range l.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scheduled возвращает pipelines с cron-расписанием.
func (l *Library) Scheduled() []*Pipeline {
	var scheduled []*Pipeline
	for _, name := range l.Names() {
		if p := l.byName[name]; p.HasSchedule() {
			scheduled = append(scheduled, p)
		}
	}
	return scheduled
}

// Len возвращает количество загруженных pipelines.
func (l *Library) Len() int {
	return len(l.byName)
}
