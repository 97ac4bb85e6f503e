package domain

import "time"

// ProviderGoogleFit identifies Google Fit credentials in the integrations table.
const ProviderGoogleFit = "google_fit"

// DateLayout is the canonical calendar-date encoding used on the wire and in SQLite.
const DateLayout = "2006-01-02"

// WeightSource tags where a weight measurement came from.
type WeightSource string

const (
	WeightSourceGoogleFit WeightSource = "google_fit"
	WeightSourceManual    WeightSource = "manual"
)

// Credential is the OAuth credential held for one (user, provider) pair.
// RefreshToken is empty when the provider did not issue one.
type Credential struct {
	UserID       string
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// HasRefreshToken reports whether the credential can be refreshed without user consent.
func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// DailyActivity is the reconciled activity total for one user and one UTC calendar day.
type DailyActivity struct {
	UserID        string
	Date          time.Time
	Steps         int64
	Calories      float64
	ActiveMinutes float64
	HeartMinutes  float64
}

// HasActivity reports whether any metric is strictly positive. All-zero days are
// never stored so that "no sync" stays distinguishable from "no movement".
func (a DailyActivity) HasActivity() bool {
	return a.Steps > 0 || a.Calories > 0 || a.ActiveMinutes > 0 || a.HeartMinutes > 0
}

// WeightLog is one weight measurement per user and day.
type WeightLog struct {
	UserID string
	Date   time.Time
	Weight float64
	Source WeightSource
}

// DayOf truncates t to the start of its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC day.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

// FormatDate renders a day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
