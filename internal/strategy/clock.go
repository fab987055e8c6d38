package strategy

import (
	"time"

	"botarena/internal/config"
)

// Clock is the exchange session calendar used for day keys and time-of-day
// windows. Open and close are minutes after local midnight.
type Clock struct {
	loc   *time.Location
	open  int
	close int
}

func NewClock(loc *time.Location, openMinutes, closeMinutes int) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{loc: loc, open: openMinutes, close: closeMinutes}
}

// ClockFromConfig builds the session clock from engine settings.
func ClockFromConfig(cfg config.EngineConfig) (Clock, error) {
	open, err := config.ParseClock(cfg.SessionOpen)
	if err != nil {
		return Clock{}, err
	}
	closeAt, err := config.ParseClock(cfg.SessionClose)
	if err != nil {
		return Clock{}, err
	}
	return NewClock(cfg.Location(), open, closeAt), nil
}

// DefaultClock is the US equity session, 09:30-16:00 America/New_York.
func DefaultClock() Clock {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return NewClock(loc, 9*60+30, 16*60)
}

func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Day is the session-local calendar date of t.
func (c Clock) Day(t time.Time) string {
	return t.In(c.Location()).Format(time.DateOnly)
}

func (c Clock) minuteOfDay(t time.Time) float64 {
	local := t.In(c.Location())
	return float64(local.Hour()*60+local.Minute()) + float64(local.Second())/60
}

// MinutesSinceOpen is negative before the open.
func (c Clock) MinutesSinceOpen(t time.Time) float64 {
	return c.minuteOfDay(t) - float64(c.open)
}

// MinutesToClose is negative after the close.
func (c Clock) MinutesToClose(t time.Time) float64 {
	return float64(c.close) - c.minuteOfDay(t)
}

func (c Clock) InSession(t time.Time) bool {
	wd := t.In(c.Location()).Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return c.MinutesSinceOpen(t) >= 0 && c.MinutesToClose(t) > 0
}

// SessionOpen returns the open instant of t's session day.
func (c Clock) SessionOpen(t time.Time) time.Time {
	local := t.In(c.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, c.open/60, c.open%60, 0, 0, c.Location())
}
