package rule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"careops-alert-engine/internal/logger"
)

// Loader handles loading rule definitions from the filesystem, letting
// the engine run standalone without the configuration UI.
type Loader struct {
	logger *logger.Logger
}

// NewLoader creates a new rule loader
func NewLoader(log *logger.Logger) *Loader {
	return &Loader{
		logger: log,
	}
}

// LoadFromDirectory loads all rule files (.json, .yaml, .yml) from a
// directory and its subdirectories. Every loaded rule is validated;
// one malformed file fails the whole load so a partial rule set never
// goes live unnoticed.
func (l *Loader) LoadFromDirectory(path string) ([]Rule, error) {
	var rules []Rule

	err := filepath.Walk(path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}

		l.logger.Debug("loading rule file", "path", path)

		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Error("failed to read rule file",
				"path", path,
				"error", err)
			return err
		}

		var fileRules []Rule
		if ext == ".json" {
			err = json.Unmarshal(data, &fileRules)
		} else {
			err = yaml.Unmarshal(data, &fileRules)
		}
		if err != nil {
			l.logger.Error("failed to parse rule file",
				"path", path,
				"error", err)
			return err
		}

		for i := range fileRules {
			if err := Validate(&fileRules[i]); err != nil {
				l.logger.Error("invalid rule in file",
					"path", path,
					"rule", fileRules[i].Name,
					"error", err)
				return fmt.Errorf("%s: %w", path, err)
			}
		}

		l.logger.Debug("successfully loaded rules",
			"path", path,
			"count", len(fileRules))

		rules = append(rules, fileRules...)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	l.logger.Info("rules loaded successfully",
		"totalRules", len(rules))

	return rules, nil
}
