// Package profiles persists interface profiles. Backends implement
// schemas.ProfileStore and are composed by Chain in a fixed priority order.
package profiles

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore keeps one pretty-printed JSON file per platform at
// {dir}/{platform}.json. It is the lowest-priority fallback backend and the
// wire format other tools read, so the encoding is stable: 2-space indent,
// UTF-8, no HTML escaping.
type FileStore struct {
	logger *zap.Logger
	dir    string
}

func NewFileStore(logger *zap.Logger, dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profiles dir: %w", err)
	}
	return &FileStore{logger: logger.Named("profile_file"), dir: dir}, nil
}

func (f *FileStore) path(platform string) string {
	return filepath.Join(f.dir, platform+".json")
}

func (f *FileStore) GetProfile(_ context.Context, platform string) (*schemas.InterfaceProfile, error) {
	data, err := os.ReadFile(f.path(platform))
	if os.IsNotExist(err) {
		return nil, schemas.NewProfileNotFound(platform)
	}
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", platform, err)
	}
	var profile schemas.InterfaceProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", platform, err)
	}
	if profile.Name == "" {
		profile.Name = platform
	}
	return &profile, nil
}

func (f *FileStore) ListPlatforms(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list profiles dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// SavePositions replaces the profile's position set wholesale and rewrites
// its file. A missing profile file gets a minimal one created around the
// positions, so grounding can precede full configuration.
func (f *FileStore) SavePositions(ctx context.Context, platform string, positions schemas.PositionSet) error {
	profile, err := f.GetProfile(ctx, platform)
	if err != nil {
		if !schemas.IsProfileNotFound(err) {
			return err
		}
		profile = &schemas.InterfaceProfile{Name: platform}
	}
	profile.Positions = positions.Clone()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(profile); err != nil {
		return fmt.Errorf("encode profile %s: %w", platform, err)
	}
	if err := os.WriteFile(f.path(platform), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write profile %s: %w", platform, err)
	}
	f.logger.Info("Positions saved",
		zap.String("platform", platform),
		zap.Int("elements", len(positions)))
	return nil
}
