// Package config reads the per-user defaults of mkimg and mapping manifests.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gokrazy/mkimg"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Dir returns the directory holding config.yaml.
//
// Typically ~/.config/mkimg on Linux
// Typically ~/Library/Application\ Support/mkimg on macOS/Darwin
func Dir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "mkimg"), nil
}

// Config holds the defaults applied to command line flags.
type Config struct {
	VolumeLabel   string `yaml:"volume_label"`
	OEMName       string `yaml:"oem_name"`
	PlainName     string `yaml:"plain_name"`
	DeceptiveName string `yaml:"deceptive_name"`
	ExcludeRoot   bool   `yaml:"exclude_root"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		PlainName:     "disk.img",
		DeceptiveName: "deceptive.img",
	}
}

// Load reads config.yaml from Dir. A missing file is not an error.
func Load(fsys afero.Fs) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		// no configuration directory (e.g. $HOME unset)
		return Default(), nil
	}
	return LoadFile(fsys, filepath.Join(dir, "config.yaml"))
}

// LoadFile reads the config file at path, falling back to Default for unset
// output names. A missing file is not an error.
func LoadFile(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	def := Default()
	if cfg.PlainName == "" {
		cfg.PlainName = def.PlainName
	}
	if cfg.DeceptiveName == "" {
		cfg.DeceptiveName = def.DeceptiveName
	}
	return cfg, nil
}

type manifest struct {
	Mappings []struct {
		External string `yaml:"external"`
		Internal string `yaml:"internal"`
	} `yaml:"mappings"`
}

// LoadManifest reads a YAML list of mappings such as:
//
//	mappings:
//	  - external: kernel/vmlinuz
//	    internal: EFI/BOOT/bootx64.efi
//
// Relative external paths are interpreted relative to the directory
// containing the manifest.
func LoadManifest(fsys afero.Fs, path string) ([]mkimg.Mapping, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	if len(m.Mappings) == 0 {
		return nil, fmt.Errorf("%w: %s contains no mappings", mkimg.ErrValidation, path)
	}
	args := make([]string, 0, 2*len(m.Mappings))
	for _, e := range m.Mappings {
		external := e.External
		if external != "" && !filepath.IsAbs(external) {
			external = filepath.Join(filepath.Dir(path), external)
		}
		args = append(args, external, e.Internal)
	}
	return mkimg.Pairs(args)
}
