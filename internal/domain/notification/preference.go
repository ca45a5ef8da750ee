package notification

import (
	"fmt"
	"time"
)

// QuietWindow is a per-channel [start,end) window in the user's timezone
// during which sends are deferred rather than dropped. Windows may cross
// midnight (e.g. 22:00-08:00).
type QuietWindow struct {
	Start    string // "HH:MM"
	End      string // "HH:MM"
	Timezone string // IANA name; empty means UTC
}

// Preference is a user's notification routing policy: which channels each
// notification type may use, plus optional quiet windows per channel.
type Preference struct {
	UserID       string
	Allowed      map[Type][]Channel
	QuietWindows map[Channel]QuietWindow
}

func (p *Preference) Clone() *Preference {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Allowed != nil {
		clone.Allowed = make(map[Type][]Channel, len(p.Allowed))
		for k, v := range p.Allowed {
			clone.Allowed[k] = append([]Channel(nil), v...)
		}
	}
	if p.QuietWindows != nil {
		clone.QuietWindows = make(map[Channel]QuietWindow, len(p.QuietWindows))
		for k, v := range p.QuietWindows {
			clone.QuietWindows[k] = v
		}
	}
	return &clone
}

// Allows reports whether the channel may carry the given notification type.
// A user with no recorded policy for the type allows every channel.
func (p *Preference) Allows(typ Type, ch Channel) bool {
	if p == nil || p.Allowed == nil {
		return true
	}
	channels, ok := p.Allowed[typ]
	if !ok {
		return true
	}
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

// QuietUntil returns the deferral instant when now falls inside the
// channel's quiet window, and ok=false otherwise. For a window crossing
// midnight the returned instant is the window end on the following day.
func (p *Preference) QuietUntil(ch Channel, now time.Time) (time.Time, bool) {
	if p == nil || p.QuietWindows == nil {
		return time.Time{}, false
	}
	w, ok := p.QuietWindows[ch]
	if !ok {
		return time.Time{}, false
	}
	return w.DeferUntil(now)
}

// DeferUntil resolves whether t is inside the window and, if so, the first
// window-end instant after t.
func (w QuietWindow) DeferUntil(t time.Time) (time.Time, bool) {
	loc := time.UTC
	if w.Timezone != "" {
		if l, err := time.LoadLocation(w.Timezone); err == nil {
			loc = l
		}
	}
	local := t.In(loc)

	startH, startM, err := parseClock(w.Start)
	if err != nil {
		return time.Time{}, false
	}
	endH, endM, err := parseClock(w.End)
	if err != nil {
		return time.Time{}, false
	}

	minutes := local.Hour()*60 + local.Minute()
	start := startH*60 + startM
	end := endH*60 + endM

	inside := false
	if start <= end {
		inside = minutes >= start && minutes < end
	} else {
		// window crosses midnight
		inside = minutes >= start || minutes < end
	}
	if !inside {
		return time.Time{}, false
	}

	until := time.Date(local.Year(), local.Month(), local.Day(), endH, endM, 0, 0, loc)
	if !until.After(local) {
		until = until.AddDate(0, 0, 1)
	}
	return until.UTC(), true
}

func parseClock(s string) (h, m int, err error) {
	if _, err = fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("notification: invalid clock %q", s)
	}
	return h, m, nil
}
