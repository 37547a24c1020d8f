package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ValidateCampaign checks a campaign at the create/update boundary so the
// scheduler never has to defend against malformed rows.
func ValidateCampaign(c Campaign) error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user_id required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name required")
	}
	if strings.TrimSpace(c.Message) == "" {
		return errors.New("message required")
	}
	if len(c.Groups) == 0 {
		return errors.New("at least one target group required")
	}
	for _, g := range c.Groups {
		if strings.TrimSpace(g) == "" {
			return errors.New("group ids must be non-empty")
		}
	}
	if err := ValidateSchedule(c.Schedule); err != nil {
		return err
	}
	return ValidateSendConfig(c.Config)
}

func ValidateSchedule(s Schedule) error {
	switch s.Type {
	case ScheduleOnce, ScheduleDaily, ScheduleWeekly:
	default:
		return fmt.Errorf("schedule type %q must be one of once, daily, weekly", s.Type)
	}
	if err := validateClock(s.Time); err != nil {
		return err
	}
	if s.Type == ScheduleWeekly {
		if len(s.DaysOfWeek) == 0 {
			return errors.New("weekly schedule requires days_of_week")
		}
		for _, d := range s.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("day_of_week %d out of range 0-6", d)
			}
		}
	}
	return nil
}

func ValidateSendConfig(cfg SendConfig) error {
	if cfg.MinDelaySec < 0 || cfg.MaxDelaySec < 0 {
		return errors.New("delays must be non-negative")
	}
	if cfg.MinDelaySec > cfg.MaxDelaySec {
		return fmt.Errorf("min_delay_sec %d exceeds max_delay_sec %d", cfg.MinDelaySec, cfg.MaxDelaySec)
	}
	if w := cfg.Window; w != nil {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
			return errors.New("operating window hours must be 0-23")
		}
	}
	return nil
}

func validateClock(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return fmt.Errorf("time %q must be HH:MM", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("time %q must be HH:MM", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return fmt.Errorf("time %q must be HH:MM", v)
	}
	return nil
}
