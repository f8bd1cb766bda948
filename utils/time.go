// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// mjdUnixEpoch is the Modified Julian Date of 1970-01-01T00:00:00Z
const mjdUnixEpoch = 40587.0

const secondsPerDay = 86400.0

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// ParseDate parses a date in any of the common layouts (ISO 8601, RFC 3339, "2006-01-02",
// "01/02/2006", ...). Values without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TimeToMJD converts t to a Modified Julian Date.
func TimeToMJD(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Unix())/secondsPerDay + float64(t.Nanosecond())/1e9/secondsPerDay + mjdUnixEpoch
}

// MJDToTime converts a Modified Julian Date to UTC time.
func MJDToTime(mjd float64) time.Time {
	secs := (mjd - mjdUnixEpoch) * secondsPerDay
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * 1e9)
	return time.Unix(whole, nanos).UTC()
}
