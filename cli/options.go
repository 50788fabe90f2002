package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/alecthomas/kong"

	"go.hackfix.me/mailstore/xtime"
)

// DurationMapper parses durations with calendar units, such as "30d" or "1M",
// into sql.Null[time.Duration] fields.
type DurationMapper struct{}

var _ kong.Mapper = (*DurationMapper)(nil)

var nullDurationType = reflect.TypeOf(sql.Null[time.Duration]{})

// Decode implements the kong.Mapper interface.
func (DurationMapper) Decode(kctx *kong.DecodeContext, target reflect.Value) error {
	if target.Type() != nullDurationType {
		return fmt.Errorf("duration mapper can't decode into %s", target.Type())
	}

	var value string
	if err := kctx.Scan.PopValueInto("duration", &value); err != nil {
		return err //nolint:wrapcheck // Kong adds the flag context.
	}

	dur, err := xtime.ParseDuration(value)
	if err != nil {
		return err
	}
	if dur < 0 {
		return errors.New("duration must not be negative")
	}

	target.Set(reflect.ValueOf(sql.Null[time.Duration]{V: dur, Valid: true}))

	return nil
}
