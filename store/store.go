package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/models"
)

// ErrProfileNotFound reports that a pricing run asked for a hotel that has
// no discovery profile on disk yet.
var ErrProfileNotFound = errors.New("hotel profile not found")

// Store persists hotel profiles, rate reports and diagnostic artifacts as
// plain JSON/text files under the configured directories. Directories are
// created on first write.
type Store struct {
	cfg config.StoreConfig
}

// New builds a Store over the configured directory layout.
func New(cfg config.StoreConfig) *Store {
	return &Store{cfg: cfg}
}

// normalize derives the on-disk hotel slug: spaces become underscores and
// everything is lowercased, so "Grand Pine Hotel" maps to
// grand_pine_hotel_profile.json.
func normalize(hotelName string) string {
	return strings.ToLower(strings.ReplaceAll(hotelName, " ", "_"))
}

// ProfilePath returns where the hotel's profile lives.
func (s *Store) ProfilePath(hotelName string) string {
	return filepath.Join(s.cfg.ProfilesDir, normalize(hotelName)+"_profile.json")
}

// SaveProfile writes the discovery profile and returns its path.
func (s *Store) SaveProfile(profile models.HotelProfile) (string, error) {
	path := s.ProfilePath(profile.HotelName)
	if err := writeJSON(path, profile); err != nil {
		return "", err
	}
	slog.Info("profile saved",
		"hotel", profile.HotelName, "path", path, "rooms", len(profile.RoomTypes),
	)
	return path, nil
}

// LoadProfile reads the profile for a hotel. ErrProfileNotFound means
// discovery has not been run for it yet.
func (s *Store) LoadProfile(hotelName string) (models.HotelProfile, error) {
	path := s.ProfilePath(hotelName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.HotelProfile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, hotelName)
		}
		return models.HotelProfile{}, models.NewScrapeError(
			models.ErrCodeStore, "failed to read profile", err,
		)
	}

	var profile models.HotelProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return models.HotelProfile{}, models.NewScrapeError(
			models.ErrCodeStore, "profile file is corrupt", err,
		)
	}
	return profile, nil
}

// SaveReport writes the run's rate report. The filename carries the run day
// so consecutive runs never overwrite each other.
func (s *Store) SaveReport(report models.RateReport, asOf time.Time) (string, error) {
	name := fmt.Sprintf("%s_prices_%s.json", normalize(report.HotelName), asOf.Format("20060102"))
	path := filepath.Join(s.cfg.ResultsDir, name)
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	slog.Info("report saved",
		"hotel", report.HotelName, "path", path, "dates", len(report.DailyRates),
	)
	return path, nil
}

// SaveCaptchaPage keeps the visible text of a challenge page for offline
// inspection.
func (s *Store) SaveCaptchaPage(date string, pageText string) (string, error) {
	path := filepath.Join(s.cfg.DebugDir, fmt.Sprintf("captcha_page_%s.html", date))
	if err := writeFile(path, []byte(pageText)); err != nil {
		return "", err
	}
	return path, nil
}

// SaveRawExtraction keeps a model response that could not be parsed.
func (s *Store) SaveRawExtraction(date string, raw string) (string, error) {
	path := filepath.Join(s.cfg.DebugDir, fmt.Sprintf("extract_raw_%s.txt", date))
	if err := writeFile(path, []byte(raw)); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.NewScrapeError(
			models.ErrCodeStore, "failed to encode "+filepath.Base(path), err,
		)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.NewScrapeError(
			models.ErrCodeStore, "failed to create "+filepath.Dir(path), err,
		)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.NewScrapeError(
			models.ErrCodeStore, "failed to write "+filepath.Base(path), err,
		)
	}
	return nil
}
