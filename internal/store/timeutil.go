package store

import "time"

// dbTimeLayout is fixed width so stored timestamps sort lexically.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z"

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dbTimeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return dbFormatTime(*value)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseNullTime(value string, valid bool) (*time.Time, error) {
	if !valid || value == "" {
		return nil, nil
	}
	parsed, err := dbParseTime(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
