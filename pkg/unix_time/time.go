// Package unix_time renders timestamps as unix epoch seconds in JSON
package unix_time

import (
	"strconv"
	"time"
)

type Time time.Time

func Now() Time {
	return Time(time.Now())
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Time(t).Unix(), 10)), nil
}
