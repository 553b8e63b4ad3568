package clock

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"cloud.google.com/go/civil"
)

// DefaultTimeZone is the deployment zone used when none is configured.
const DefaultTimeZone = "America/Lima"

// Window is the classification of an instant in the policy's zone.
type Window struct {
	Local            time.Time
	Date             civil.Date
	IsBusinessWindow bool
	IsClosingHour    bool
}

// Policy resolves the current instant in a fixed zone and classifies it.
type Policy struct {
	clock         Clock
	location      *time.Location
	businessStart int
	businessEnd   int
	closingHour   int
}

// PolicyConfig configures the business window [BusinessStartHour, BusinessEndHour)
// and the closing hour, all in local hours of TimeZone.
type PolicyConfig struct {
	TimeZone          string
	BusinessStartHour int
	BusinessEndHour   int
	ClosingHour       int
}

// DefaultPolicyConfig returns the reference windows: business 07:00-23:00, closing at 23:00.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		TimeZone:          DefaultTimeZone,
		BusinessStartHour: 7,
		BusinessEndHour:   23,
		ClosingHour:       23,
	}
}

// NewPolicy creates a Policy reading time from c.
func NewPolicy(c Clock, cfg PolicyConfig) (*Policy, error) {
	if c == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	zone := cfg.TimeZone
	if zone == "" {
		zone = DefaultTimeZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", zone, err)
	}
	if cfg.BusinessStartHour < 0 || cfg.BusinessEndHour > 24 || cfg.BusinessStartHour >= cfg.BusinessEndHour {
		return nil, fmt.Errorf("invalid business window [%d, %d)", cfg.BusinessStartHour, cfg.BusinessEndHour)
	}
	if cfg.ClosingHour < 0 || cfg.ClosingHour > 23 {
		return nil, fmt.Errorf("invalid closing hour %d", cfg.ClosingHour)
	}
	return &Policy{
		clock:         c,
		location:      loc,
		businessStart: cfg.BusinessStartHour,
		businessEnd:   cfg.BusinessEndHour,
		closingHour:   cfg.ClosingHour,
	}, nil
}

// Location returns the zone the policy reasons in.
func (p *Policy) Location() *time.Location { return p.location }

// Clock returns the underlying time source.
func (p *Policy) Clock() Clock { return p.clock }

// Now returns the current instant in the policy's zone.
func (p *Policy) Now() time.Time {
	return p.clock.Now().In(p.location)
}

// Today returns the current calendar date in the policy's zone.
func (p *Policy) Today() civil.Date {
	return civil.DateOf(p.Now())
}

// DateOf returns the calendar date of t in the policy's zone.
func (p *Policy) DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.In(p.location))
}

// Classify places t into the policy's operational windows. It has no side effects.
func (p *Policy) Classify(t time.Time) Window {
	local := t.In(p.location)
	hour := local.Hour()
	return Window{
		Local:            local,
		Date:             civil.DateOf(local),
		IsBusinessWindow: hour >= p.businessStart && hour < p.businessEnd,
		IsClosingHour:    hour == p.closingHour,
	}
}
