package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// sessionWindow is one intraday trading session, minutes from midnight.
type sessionWindow struct {
	start int
	end   int
}

// tradingHours is a market's session calendar. An empty session list means
// the market is always considered open.
type tradingHours struct {
	loc      *time.Location
	sessions []sessionWindow
}

// parseTradingHours parses session strings like "09:30-12:00" in the given
// timezone. An empty timezone defaults to the local zone.
func parseTradingHours(timezone string, sessions []string) (*tradingHours, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}

	h := &tradingHours{loc: loc}
	for _, s := range sessions {
		parts := strings.Split(s, "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid session %q: want HH:MM-HH:MM", s)
		}
		start, err := parseMinutes(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid session %q: %w", s, err)
		}
		end, err := parseMinutes(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid session %q: %w", s, err)
		}
		if end <= start {
			return nil, fmt.Errorf("invalid session %q: end not after start", s)
		}
		h.sessions = append(h.sessions, sessionWindow{start: start, end: end})
	}
	return h, nil
}

func parseMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsOpen reports whether now falls inside a session on a weekday.
func (h *tradingHours) IsOpen(now time.Time) bool {
	if len(h.sessions) == 0 {
		return true
	}
	local := now.In(h.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	for _, s := range h.sessions {
		if minutes >= s.start && minutes < s.end {
			return true
		}
	}
	return false
}
