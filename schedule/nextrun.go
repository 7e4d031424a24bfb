package schedule

import (
	"time"

	"github.com/opensyte/workflow-core/adapters"
)

const defaultFallbackInterval = 5 * time.Minute

// NextRun computes the next fire time for a schedule (spec §4.3):
//
//   - Operate in UTC unless Timezone is set.
//   - The reference time is the later of `now` (floored to the minute) and
//     StartAt, when set.
//   - If Cron is present, it wins over Frequency (Open Question a) and is
//     parsed with the standard 5-field parser; the next fire strictly after
//     the reference is requested.
//   - Otherwise Frequency drives calendar arithmetic: HOURLY=+1h, DAILY=+1d,
//     WEEKLY=+7d, MONTHLY=+1 calendar month, YEARLY=+12 months.
//   - With neither Cron nor Frequency set, default to +5 minutes.
//   - If the candidate exceeds EndAt, return (nil, false): the caller must
//     deactivate the schedule.
func NextRun(cronParser adapters.CronParser, rec Record, now time.Time) (*time.Time, bool, error) {
	ref := now.UTC().Truncate(time.Minute)
	if rec.StartAt != nil && rec.StartAt.After(ref) {
		ref = rec.StartAt.UTC()
	}

	var candidate time.Time
	if rec.Cron != "" {
		next, err := cronParser.Next(rec.Cron, ref, rec.Timezone)
		if err != nil {
			return nil, false, err
		}
		candidate = next.UTC()
	} else {
		candidate = applyFrequency(rec.Frequency, ref)
	}

	if rec.EndAt != nil && candidate.After(*rec.EndAt) {
		return nil, false, nil
	}
	return &candidate, true, nil
}

func applyFrequency(freq Frequency, ref time.Time) time.Time {
	switch freq {
	case Hourly:
		return ref.Add(time.Hour)
	case Daily:
		return ref.AddDate(0, 0, 1)
	case Weekly:
		return ref.AddDate(0, 0, 7)
	case Monthly:
		return ref.AddDate(0, 1, 0)
	case Yearly:
		return ref.AddDate(1, 0, 0)
	default:
		return ref.Add(defaultFallbackInterval)
	}
}
