package config

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/halcyonlabs/streamwatch/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before
// modifying a config file.
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, 0644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// isBackupFile reports whether path names one of our rotating backups.
func isBackupFile(path string) bool {
	return strings.Contains(path, ".back1") ||
		strings.Contains(path, ".back2") ||
		strings.Contains(path, ".back3")
}

// loadFileSettings reads a TOML config file into a raw map, or returns an
// empty map when the file does not exist yet.
func loadFileSettings(configPath string) (map[string]interface{}, error) {
	settings := make(map[string]interface{})
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err := toml.Unmarshal(data, &settings); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return settings, nil
}

// saveFileSettings writes a raw settings map back to disk with a backup.
// When a watcher is supplied the write is marked as our own so the watcher
// does not reload on it.
func saveFileSettings(settings map[string]interface{}, configPath string, cw *ConfigWatcher) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if cw != nil {
		cw.MarkOwnWrite()
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}

	return nil
}

// UpdateJobSection persists one job's config overrides into the [jobs.<name>]
// section of the config file, preserving everything else in the file.
func UpdateJobSection(configPath, jobName string, overrides map[string]interface{}, cw *ConfigWatcher) error {
	settings, err := loadFileSettings(configPath)
	if err != nil {
		return err
	}

	var jobsSection map[string]interface{}
	if j, ok := settings["jobs"].(map[string]interface{}); ok {
		jobsSection = j
	} else {
		jobsSection = make(map[string]interface{})
	}

	var jobSection map[string]interface{}
	if s, ok := jobsSection[jobName].(map[string]interface{}); ok {
		jobSection = s
	} else {
		jobSection = make(map[string]interface{})
	}

	for k, v := range overrides {
		jobSection[k] = v
	}
	jobsSection[jobName] = jobSection
	settings["jobs"] = jobsSection

	return saveFileSettings(settings, configPath, cw)
}
