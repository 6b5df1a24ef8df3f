package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile overrides sessionization parameters for a single product. Products
// without a profile use the global config values.
type Profile struct {
	ProductCode    string
	SessionTimeout time.Duration
	ActionCodes    []string

	actionSet ActionSet
}

// rawProfile is the on-disk YAML shape.
type rawProfile struct {
	ProductCode    string   `yaml:"product_code"`
	SessionTimeout string   `yaml:"session_timeout"`
	ActionCodes    []string `yaml:"action_codes"`
}

// FileSystemProfileRepository loads product profiles from *.yaml files in a
// directory. Each file contains exactly one profile. Profiles are loaded once
// at startup and cached in memory — no hot reload.
type FileSystemProfileRepository struct {
	dir      string
	profiles map[string]Profile // keyed by ProductCode
}

// NewFileSystemProfileRepository creates a repository and eagerly loads all
// profiles from dir. A missing directory is valid (zero profiles configured);
// a malformed profile file is a startup error.
func NewFileSystemProfileRepository(dir string) (*FileSystemProfileRepository, error) {
	repo := &FileSystemProfileRepository{
		dir:      dir,
		profiles: make(map[string]Profile),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemProfileRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("profile dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("profile path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading profile dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading profile file %s: %w", path, err)
		}

		var raw rawProfile
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing profile file %s: %w", path, err)
		}
		if raw.ProductCode == "" {
			continue // skip empty / comment-only files
		}

		profile := Profile{
			ProductCode: raw.ProductCode,
			ActionCodes: raw.ActionCodes,
			actionSet:   NewActionSet(raw.ActionCodes),
		}

		if raw.SessionTimeout != "" {
			d, err := time.ParseDuration(raw.SessionTimeout)
			if err != nil {
				return fmt.Errorf("profile %q: invalid session_timeout %q: %w", raw.ProductCode, raw.SessionTimeout, err)
			}
			if d <= 0 {
				return fmt.Errorf("profile %q: session_timeout must be positive", raw.ProductCode)
			}
			profile.SessionTimeout = d
		}

		if _, exists := r.profiles[raw.ProductCode]; exists {
			return fmt.Errorf("profile %q: duplicate product code (check multiple YAML files)", raw.ProductCode)
		}

		r.profiles[raw.ProductCode] = profile
	}
	return nil
}

// Get returns the profile for a product code, if one is configured.
func (r *FileSystemProfileRepository) Get(productCode string) (Profile, bool) {
	p, ok := r.profiles[productCode]
	return p, ok
}

// Profiles returns all loaded profiles as a slice.
func (r *FileSystemProfileRepository) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}

// NewProfile builds an in-code profile, used by tests and embedders.
func NewProfile(productCode string, timeout time.Duration, actionCodes []string) Profile {
	return Profile{
		ProductCode:    productCode,
		SessionTimeout: timeout,
		ActionCodes:    actionCodes,
		actionSet:      NewActionSet(actionCodes),
	}
}
