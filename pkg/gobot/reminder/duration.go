package reminder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultMessage is sent when a reminder is created without text.
const DefaultMessage = "ping!"

// maxDelay caps how far ahead a reminder may be set.
const maxDelay = 10 * 365 * 24 * time.Hour

var (
	// ErrNoDuration is returned when the text holds no duration component.
	ErrNoDuration = errors.New("no duration given")

	// ErrDurationTooLong is returned for delays beyond ten years.
	ErrDurationTooLong = errors.New("duration too long")
)

// commandPattern parses "[<N>d][<N>h][<N>m][<N>s] [message]".
var commandPattern = regexp.MustCompile(`^(?:(?P<days>\d+)d)?(?:(?P<hours>\d+)h)?(?:(?P<minutes>\d+)m)?(?:(?P<seconds>\d+)s)?(?: (?P<remind>.+))?`)

var deletePattern = regexp.MustCompile(`^(?P<uid>\w{8})$`)

var units = []struct {
	group string
	unit  time.Duration
}{
	{"days", 24 * time.Hour},
	{"hours", time.Hour},
	{"minutes", time.Minute},
	{"seconds", time.Second},
}

// ParseDuration parses reminder text such as "1d2h Buy milk" into a delay
// and a message. The message defaults to DefaultMessage.
func ParseDuration(text string) (time.Duration, string, error) {
	m := commandPattern.FindStringSubmatch(text)
	args := map[string]string{}
	if m != nil {
		for i, name := range commandPattern.SubexpNames() {
			if name != "" && m[i] != "" {
				args[name] = m[i]
			}
		}
	}
	return fromArgs(args)
}

// fromArgs converts the named groups of commandPattern.
func fromArgs(args map[string]string) (time.Duration, string, error) {
	var (
		total time.Duration
		found bool
	)
	for _, u := range units {
		raw, ok := args[u.group]
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n > int64(maxDelay/u.unit) {
			return 0, "", fmt.Errorf("%w: %s%c", ErrDurationTooLong, raw, u.group[0])
		}
		total += time.Duration(n) * u.unit
		found = true
	}
	if !found {
		return 0, "", ErrNoDuration
	}
	if total > maxDelay {
		return 0, "", ErrDurationTooLong
	}

	msg := args["remind"]
	if msg == "" {
		msg = DefaultMessage
	}
	return total, msg, nil
}
