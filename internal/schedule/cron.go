package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

var ErrNoUpcomingRun = errors.New("cron expression has no upcoming run")

func parse(cron string) (*cronexpr.Expression, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return expr, nil
}

// NextRunTimes returns the next N run times that a cron expression will run.
// Each run time is in UTC.
func NextRunTimes(cron string, n int) ([]time.Time, error) {
	cutoff := time.Now().UTC()
	return NextRunTimesAfter(cron, cutoff, n)
}

// NextRunTimesAfter returns the next N run times after a specific time.
// It returns an error if the cron expression is invalid or if count is less than 1.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	expr, err := parse(cron)
	if err != nil {
		return nil, err
	}
	return expr.NextN(after, uint(n)), nil
}

// NextRunTimeAfter returns the first run time strictly after after.
func NextRunTimeAfter(cron string, after time.Time) (time.Time, error) {
	expr, err := parse(cron)
	if err != nil {
		return time.Time{}, err
	}
	next := expr.Next(after)
	if next.IsZero() {
		return time.Time{}, ErrNoUpcomingRun
	}
	return next, nil
}

func ValidateCron(cron string) error {
	_, err := parse(cron)
	return err
}
