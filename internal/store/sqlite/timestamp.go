package sqlite

import (
	"fmt"
	"time"
)

// Layouts SQLite may hand back for a DATETIME column: the driver's
// formats for bound time.Time values, and CURRENT_TIMESTAMP's.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// timestamp scans a DATETIME column whether the driver reports it as a
// time.Time or as text (columns of subqueries lose their declared type).
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("sqlite: cannot scan %T into timestamp", src)
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("sqlite: unrecognized timestamp %q", s)
}
