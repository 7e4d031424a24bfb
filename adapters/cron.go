package adapters

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// RobfigCronParser implements CronParser on top of robfig/cron/v3's
// standard 5-field parser.
type RobfigCronParser struct{}

func NewRobfigCronParser() *RobfigCronParser { return &RobfigCronParser{} }

func (p *RobfigCronParser) Next(expr string, from time.Time, tz string) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		loc = l
	}
	return sched.Next(from.In(loc)).UTC(), nil
}
