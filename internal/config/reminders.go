package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultReminderSchedule = "0 9 * * 1-5"
	defaultDueSoonDays      = 3
)

// Reminders configures the expiry nudge job.
type Reminders struct {
	Schedule    string   `yaml:"schedule"`
	Timezone    string   `yaml:"timezone"`
	DueSoonDays int      `yaml:"due_soon_days"`
	Reviewers   []string `yaml:"reviewers"`

	Location *time.Location `yaml:"-"`
}

// LoadReminders reads the YAML reminders file. A missing file yields defaults with no reviewers.
func LoadReminders(path string) (Reminders, error) {
	var r Reminders
	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &r); err != nil {
				return Reminders{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Reminders{}, err
		}
	}
	return r.normalize()
}

func (r Reminders) normalize() (Reminders, error) {
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Schedule == "" {
		r.Schedule = defaultReminderSchedule
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return Reminders{}, fmt.Errorf("invalid reminder schedule %q: %w", r.Schedule, err)
	}
	if r.DueSoonDays <= 0 {
		r.DueSoonDays = defaultDueSoonDays
	}

	loc := time.UTC
	if tz := strings.TrimSpace(r.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Reminders{}, fmt.Errorf("invalid reminder timezone %q: %w", tz, err)
		}
		loc = l
	}
	r.Location = loc

	reviewers := make([]string, 0, len(r.Reviewers))
	seen := make(map[string]struct{}, len(r.Reviewers))
	for _, id := range r.Reviewers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		reviewers = append(reviewers, id)
	}
	r.Reviewers = reviewers
	return r, nil
}

// DueSoonWindow is the horizon within which an open certification triggers a nudge.
func (r Reminders) DueSoonWindow() time.Duration {
	return time.Duration(r.DueSoonDays) * 24 * time.Hour
}
