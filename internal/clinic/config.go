// Package clinic provides clinic settings and opening-hours logic.
package clinic

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// DayHours represents the opening hours for a single day.
// Nil means the clinic is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// BusinessHours maps day names to their hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// Config holds the clinic settings shown on the dashboard and used to decide
// what "today" means.
type Config struct {
	Name          string        `json:"name"`
	Timezone      string        `json:"timezone"`
	Phone         string        `json:"phone,omitempty"`
	Address       string        `json:"address,omitempty"`
	BusinessHours BusinessHours `json:"business_hours"`
	UpdatedAt     time.Time     `json:"updated_at,omitempty"`
}

// DefaultConfig returns weekday 09:00-18:00 (Friday until 17:00) settings.
func DefaultConfig(name, timezone string) *Config {
	if strings.TrimSpace(name) == "" {
		name = "Clinic"
	}
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}
	return &Config{
		Name:     name,
		Timezone: timezone,
		BusinessHours: BusinessHours{
			Monday:    &DayHours{Open: "09:00", Close: "18:00"},
			Tuesday:   &DayHours{Open: "09:00", Close: "18:00"},
			Wednesday: &DayHours{Open: "09:00", Close: "18:00"},
			Thursday:  &DayHours{Open: "09:00", Close: "18:00"},
			Friday:    &DayHours{Open: "09:00", Close: "17:00"},
		},
	}
}

// Validate checks the timezone and every configured day.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("clinic: name is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("clinic: invalid timezone %q", c.Timezone)
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		hours := c.BusinessHours.GetHoursForDay(day)
		if hours == nil {
			continue
		}
		open, err := time.Parse("15:04", hours.Open)
		if err != nil {
			return fmt.Errorf("clinic: %s open time %q must be HH:MM", strings.ToLower(day.String()), hours.Open)
		}
		closing, err := time.Parse("15:04", hours.Close)
		if err != nil {
			return fmt.Errorf("clinic: %s close time %q must be HH:MM", strings.ToLower(day.String()), hours.Close)
		}
		if !closing.After(open) {
			return fmt.Errorf("clinic: %s closes before it opens", strings.ToLower(day.String()))
		}
	}
	return nil
}

// Location returns the clinic timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHoursForDay returns the hours for a weekday, nil when closed.
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// HasAnyHours reports whether at least one day has hours configured.
func (b *BusinessHours) HasAnyHours() bool {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if b.GetHoursForDay(day) != nil {
			return true
		}
	}
	return false
}

// IsOpenAt reports whether the clinic is open at t in its own timezone.
func (c *Config) IsOpenAt(t time.Time) bool {
	localTime := t.In(c.Location())

	hours := c.BusinessHours.GetHoursForDay(localTime.Weekday())
	if hours == nil {
		// No hours at all means appointment-only: always open.
		return !c.BusinessHours.HasAnyHours()
	}

	openTime, err := time.Parse("15:04", hours.Open)
	if err != nil {
		return false
	}
	closeTime, err := time.Parse("15:04", hours.Close)
	if err != nil {
		return false
	}

	currentMinutes := localTime.Hour()*60 + localTime.Minute()
	openMinutes := openTime.Hour()*60 + openTime.Minute()
	closeMinutes := closeTime.Hour()*60 + closeTime.Minute()

	return currentMinutes >= openMinutes && currentMinutes < closeMinutes
}

// NextOpenTime returns t when the clinic is open, otherwise the next opening
// within a week. The zero time means no opening was found.
func (c *Config) NextOpenTime(t time.Time) time.Time {
	loc := c.Location()
	localTime := t.In(loc)
	if c.IsOpenAt(t) {
		return localTime
	}

	for i := 0; i < 8; i++ {
		day := localTime.AddDate(0, 0, i)
		hours := c.BusinessHours.GetHoursForDay(day.Weekday())
		if hours == nil {
			continue
		}
		openTime, err := time.Parse("15:04", hours.Open)
		if err != nil {
			continue
		}
		opening := time.Date(day.Year(), day.Month(), day.Day(), openTime.Hour(), openTime.Minute(), 0, 0, loc)
		if opening.After(localTime) {
			return opening
		}
	}
	return time.Time{}
}
