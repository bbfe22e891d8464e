// Package value converts between Go values and the dynamic protobuf messages
// of SiLA data types, and checks values against data type constraints.
//
// Go representations per SiLA type:
//
//	String     string
//	Integer    int64 (any Go integer is accepted on encode)
//	Real       float64 (float32 and integers are accepted on encode)
//	Boolean    bool
//	Binary     []byte
//	Date       Date
//	Time       Time
//	Timestamp  time.Time
//	Any        Any
//	List       []interface{} (any slice is accepted on encode)
//	Structure  map[string]interface{}
package value

import (
	"fmt"
	"time"
)

// Timezone is an offset from UTC
type Timezone struct {
	Hours   int
	Minutes int
}

// Offset returns the timezone as seconds east of UTC
func (tz Timezone) Offset() int {
	offset := tz.Hours*3600 + tz.Minutes*60
	if tz.Hours < 0 {
		offset = tz.Hours*3600 - tz.Minutes*60
	}
	return offset
}

// TimezoneOf splits an offset in seconds east of UTC into hours and minutes
func TimezoneOf(offset int) Timezone {
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	if minutes < 0 {
		minutes = -minutes
	}
	return Timezone{Hours: hours, Minutes: minutes}
}

// Date is a calendar date in a timezone
type Date struct {
	Year     int
	Month    int
	Day      int
	Timezone Timezone
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time is a time of day in a timezone
type Time struct {
	Hour        int
	Minute      int
	Second      int
	Millisecond int
	Timezone    Timezone
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Millisecond)
}

// Any is a value of a type described at runtime
type Any struct {
	// Type is the XML data type description of the payload
	Type    string
	Payload []byte
}

// NewTimestamp builds a timestamp from SiLA components
func NewTimestamp(year, month, day, hour, minute, second, millisecond int, tz Timezone) time.Time {
	loc := time.UTC
	if offset := tz.Offset(); offset != 0 {
		loc = time.FixedZone("", offset)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, millisecond*int(time.Millisecond), loc)
}
