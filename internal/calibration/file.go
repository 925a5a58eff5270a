package calibration

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the environment prefix for calibration overrides. Nested
// keys use a double underscore, e.g. VT_CAL_THRESHOLDS__MATCH_THRESHOLD.
const EnvPrefix = "VT_CAL_"

// LoadFile reads a snapshot from a YAML file and layers VT_CAL_*
// environment overrides on top.
func LoadFile(path string) (Snapshot, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Snapshot{}, fmt.Errorf("read calibration file: %w", err)
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Snapshot{}, fmt.Errorf("read calibration env: %w", err)
	}

	var s Snapshot
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Snapshot{}, fmt.Errorf("parse calibration: %w", err)
	}
	return s, nil
}

// FileSource serves the same file-backed calibration to every venue.
// The file is re-read per call so a new run picks up edits while a run
// in progress keeps the value it was handed.
type FileSource struct {
	Path string
}

func (f FileSource) Calibration(_ context.Context, _ uuid.UUID) (*Calibration, error) {
	s, err := LoadFile(f.Path)
	if err != nil {
		return nil, err
	}
	return New(s)
}

// StaticSource always returns the same calibration.
type StaticSource struct {
	Cal *Calibration
}

func (s StaticSource) Calibration(context.Context, uuid.UUID) (*Calibration, error) {
	return s.Cal, nil
}
