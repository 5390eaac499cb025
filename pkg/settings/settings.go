package settings

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
)

// Setting keys. Values live in shell_settings as JSON.
const (
	KeyDefaultPermissions   = "default_permissions"
	KeyHistoryRetentionDays = "history_retention_days"
	KeyPruneSchedule        = "prune_schedule"
	KeyHomePage             = "home_page"
)

// Defaults applied when a setting has never been written.
const (
	DefaultHistoryRetentionDays = 90
	DefaultPruneSchedule        = "0 3 * * *"
	DefaultHomePage             = "about:blank"
)

// Service exposes typed accessors over the settings storage. Reads
// fall back to defaults when a key is missing.
type Service struct {
	storage Storage
}

// NewService wraps an existing storage.
func NewService(storage Storage) *Service {
	return &Service{storage: storage}
}

// Open opens the settings database at dbPath and returns a service
// over it.
func Open(dbPath string) (*Service, error) {
	storage, err := NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	return NewService(storage), nil
}

// Close closes the underlying storage.
func (s *Service) Close() error {
	return s.storage.Close()
}

// DefaultPermissions returns the permission set applied to newly added
// tool servers. Until configured, everything is denied.
func (s *Service) DefaultPermissions() (pagecontext.Permissions, error) {
	var perms pagecontext.Permissions
	err := s.storage.Get(KeyDefaultPermissions, &perms)
	if errors.Is(err, ErrKeyNotFound) {
		return pagecontext.Permissions{}, nil
	}
	if err != nil {
		return pagecontext.Permissions{}, err
	}
	return perms, nil
}

// SetDefaultPermissions stores the permission set for new servers.
func (s *Service) SetDefaultPermissions(perms pagecontext.Permissions) error {
	return s.storage.Set(KeyDefaultPermissions, perms)
}

// HistoryRetentionDays returns how long browsing history and the tool
// invocation log are kept.
func (s *Service) HistoryRetentionDays() (int, error) {
	var days int
	err := s.storage.Get(KeyHistoryRetentionDays, &days)
	if errors.Is(err, ErrKeyNotFound) {
		return DefaultHistoryRetentionDays, nil
	}
	if err != nil {
		return 0, err
	}
	if days <= 0 {
		return DefaultHistoryRetentionDays, nil
	}
	return days, nil
}

// SetHistoryRetentionDays stores the retention window. Days must be
// positive.
func (s *Service) SetHistoryRetentionDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", days)
	}
	return s.storage.Set(KeyHistoryRetentionDays, days)
}

// PruneSchedule returns the cron expression driving the retention
// sweep.
func (s *Service) PruneSchedule() (string, error) {
	var expr string
	err := s.storage.Get(KeyPruneSchedule, &expr)
	if errors.Is(err, ErrKeyNotFound) {
		return DefaultPruneSchedule, nil
	}
	if err != nil {
		return "", err
	}
	if expr == "" {
		return DefaultPruneSchedule, nil
	}
	return expr, nil
}

// SetPruneSchedule stores a new prune schedule after validating the
// cron expression.
func (s *Service) SetPruneSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s.storage.Set(KeyPruneSchedule, expr)
}

// HomePage returns the page the shell opens on launch.
func (s *Service) HomePage() (string, error) {
	var url string
	err := s.storage.Get(KeyHomePage, &url)
	if errors.Is(err, ErrKeyNotFound) {
		return DefaultHomePage, nil
	}
	if err != nil {
		return "", err
	}
	return url, nil
}

// SetHomePage stores the launch page.
func (s *Service) SetHomePage(url string) error {
	return s.storage.Set(KeyHomePage, url)
}
