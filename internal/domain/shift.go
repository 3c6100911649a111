package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Shift is the time-of-day bucket an activity falls into.
type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftNight     Shift = "night"
)

// Boundaries holds the clock times at which each shift begins, as HH:mm strings.
// Empty fields fall back to the process defaults.
type Boundaries struct {
	MorningStart   string
	AfternoonStart string
	NightStart     string
}

// DefaultBoundaries returns the stock shift boundaries: 07:00 / 14:00 / 21:00.
func DefaultBoundaries() Boundaries {
	return Boundaries{
		MorningStart:   "07:00",
		AfternoonStart: "14:00",
		NightStart:     "21:00",
	}
}

// Classify maps a clock time to its shift given the supplied boundaries.
// The night shift spans midnight: everything from NightStart through the
// following MorningStart is night. Malformed inputs are a validation error,
// never a silent default.
func Classify(hhmm string, b Boundaries) (Shift, error) {
	minute, err := ParseClockTime(hhmm)
	if err != nil {
		return "", err
	}

	defaults := DefaultBoundaries()
	if b.MorningStart == "" {
		b.MorningStart = defaults.MorningStart
	}
	if b.AfternoonStart == "" {
		b.AfternoonStart = defaults.AfternoonStart
	}
	if b.NightStart == "" {
		b.NightStart = defaults.NightStart
	}

	morning, err := ParseClockTime(b.MorningStart)
	if err != nil {
		return "", fmt.Errorf("morning boundary: %w", err)
	}
	afternoon, err := ParseClockTime(b.AfternoonStart)
	if err != nil {
		return "", fmt.Errorf("afternoon boundary: %w", err)
	}
	night, err := ParseClockTime(b.NightStart)
	if err != nil {
		return "", fmt.Errorf("night boundary: %w", err)
	}

	if !(morning < afternoon && afternoon < night) {
		return "", fmt.Errorf("%w: shift boundaries must be strictly increasing", ErrValidation)
	}

	switch {
	case minute >= morning && minute < afternoon:
		return ShiftMorning, nil
	case minute >= afternoon && minute < night:
		return ShiftAfternoon, nil
	default:
		return ShiftNight, nil
	}
}

// ParseClockTime converts an HH:mm string to minutes since midnight.
func ParseClockTime(hhmm string) (int, error) {
	hourPart, minutePart, ok := strings.Cut(hhmm, ":")
	if !ok || len(hourPart) != 2 || len(minutePart) != 2 {
		return 0, fmt.Errorf("%w: time %q is not in HH:mm form", ErrValidation, hhmm)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: hour out of range in %q", ErrValidation, hhmm)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: minute out of range in %q", ErrValidation, hhmm)
	}
	return hour*60 + minute, nil
}
