package reports

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Scraper drop files look like 29082026_reports.json, one array per day.
var reportFilePattern = regexp.MustCompile(`^\d{8}_reports\.json$`)

// FileStore reads the scraper's complaint drops and keeps the reward
// settings file. Complaint files are read-only from our side; the scraper
// owns them.
type FileStore struct {
	complaintDir string
	settingsPath string

	mu  sync.Mutex // guards settings writes
	now func() time.Time
}

// NewFileStore constructs a store rooted at dir. Complaint drops live in
// dir/complaint, settings in dir/settings/reward_settings.json.
func NewFileStore(dir string) (*FileStore, error) {
	complaintDir := filepath.Join(dir, "complaint")
	settingsDir := filepath.Join(dir, "settings")
	for _, d := range []string{complaintDir, settingsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("reports: create %s: %w", d, err)
		}
	}
	return &FileStore{
		complaintDir: complaintDir,
		settingsPath: filepath.Join(settingsDir, "reward_settings.json"),
		now:          time.Now,
	}, nil
}

// Complaints loads every complaint from every drop file. Unreadable files
// are skipped so one corrupt drop does not hide the rest.
func (s *FileStore) Complaints() ([]Complaint, error) {
	entries, err := os.ReadDir(s.complaintDir)
	if err != nil {
		return nil, fmt.Errorf("reports: read complaint dir: %w", err)
	}
	var all []Complaint
	for _, entry := range entries {
		if entry.IsDir() || !reportFilePattern.MatchString(entry.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.complaintDir, entry.Name()))
		if err != nil {
			continue
		}
		var batch []Complaint
		if err := json.Unmarshal(raw, &batch); err != nil {
			continue
		}
		all = append(all, batch...)
	}
	return all, nil
}

// RewardSettings returns the current settings, writing defaults on first use.
func (s *FileStore) RewardSettings() (RewardSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSettingsLocked()
}

// UpdateRewardSettings applies a partial update and persists the result.
func (s *FileStore) UpdateRewardSettings(patch RewardSettingsPatch) (RewardSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadSettingsLocked()
	if err != nil {
		return RewardSettings{}, err
	}
	if patch.ComplaintReward != nil {
		settings.ComplaintReward = *patch.ComplaintReward
	}
	if patch.ComplaintRejectedReward != nil {
		settings.ComplaintRejectedReward = *patch.ComplaintRejectedReward
	}
	if patch.BanReward != nil {
		settings.BanReward = *patch.BanReward
	}
	if patch.AppealReward != nil {
		settings.AppealReward = *patch.AppealReward
	}
	if patch.DelayPenalty != nil {
		settings.DelayPenalty = *patch.DelayPenalty
	}
	settings.UpdatedAt = s.now().UTC()
	if err := s.saveSettingsLocked(settings); err != nil {
		return RewardSettings{}, err
	}
	return settings, nil
}

func (s *FileStore) loadSettingsLocked() (RewardSettings, error) {
	raw, err := os.ReadFile(s.settingsPath)
	if errors.Is(err, os.ErrNotExist) {
		settings := defaultRewardSettings(s.now().UTC())
		if err := s.saveSettingsLocked(settings); err != nil {
			return RewardSettings{}, err
		}
		return settings, nil
	}
	if err != nil {
		return RewardSettings{}, fmt.Errorf("reports: read settings: %w", err)
	}
	var settings RewardSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return RewardSettings{}, fmt.Errorf("reports: decode settings: %w", err)
	}
	return settings, nil
}

func (s *FileStore) saveSettingsLocked(settings RewardSettings) error {
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.settingsPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("reports: write settings: %w", err)
	}
	return os.Rename(tmp, s.settingsPath)
}
