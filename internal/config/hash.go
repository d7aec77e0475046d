package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFileName is the manifest written by `printbridge config lock`.
const ChecksumFileName = ".checksums"

const manifestVersion = 1

var (
	// ErrNotLocked means the config directory has no checksum manifest.
	ErrNotLocked = errors.New("config not locked")
	// ErrConfigTampered means a locked config no longer matches its recorded hash.
	ErrConfigTampered = errors.New("config changed since it was locked")
)

// ChecksumManifest records the expected BLAKE3 hash of each locked file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport describes one `config lock` run.
type LockReport struct {
	ConfigFile   string
	ChecksumPath string
	Hash         string
	Written      bool
}

// FileHash returns the hex BLAKE3-256 digest of a file.
func FileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// LockConfig records the hash of configFile in the manifest next to it.
// Nothing is written when dryRun is set.
func LockConfig(configFile string, dryRun bool, now time.Time) (*LockReport, error) {
	hash, err := FileHash(configFile)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(configFile)
	report := &LockReport{
		ConfigFile:   configFile,
		ChecksumPath: filepath.Join(dir, ChecksumFileName),
		Hash:         hash,
	}
	if dryRun {
		return report, nil
	}

	manifest := ChecksumManifest{
		Version:     manifestVersion,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Hashes:      map[string]string{filepath.Base(configFile): hash},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the manifest from a config directory. A missing
// manifest returns ErrNotLocked.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotLocked
	}
	if err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse checksums: %w", err)
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// VerifyLocked checks configFile against the manifest in its directory.
// It returns ErrNotLocked when there is no manifest and wraps
// ErrConfigTampered when the file was edited after locking.
func VerifyLocked(configFile string) error {
	dir := filepath.Dir(configFile)
	manifest, err := LoadChecksums(dir)
	if err != nil {
		return err
	}

	name := filepath.Base(configFile)
	want, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("%w: %s has no hash in %s", ErrConfigTampered, name, ChecksumFileName)
	}
	got, err := FileHash(configFile)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s hash %s, locked %s", ErrConfigTampered, name, got, want)
	}
	return nil
}
