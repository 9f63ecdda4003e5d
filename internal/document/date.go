package document

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Aman-CERP/repoindex/internal/errors"
)

// DateLayout is the fixed-width encoding of every date field (yyyyMMddHHmmss, UTC).
const DateLayout = "20060102150405"

// EncodeDate renders t in UTC using DateLayout. Sub-second precision is dropped.
func EncodeDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// CheckDate reports an error unless t decodes back from EncodeDate unchanged:
// UTC, whole seconds, years 0001 to 9999. The zero time is accepted since
// mappers omit it.
func CheckDate(t time.Time) error {
	switch {
	case t.IsZero():
		return nil
	case t.Location() != time.UTC:
		return errors.Newf(errors.ErrCodeInvalidDateFormat, "date %s is not in UTC", t)
	case t.Nanosecond() != 0:
		return errors.Newf(errors.ErrCodeInvalidDateFormat, "date %s has sub-second precision", t)
	case t.Year() < 1 || t.Year() > 9999:
		return errors.Newf(errors.ErrCodeInvalidDateFormat, "date %s is outside years 0001-9999", t)
	}
	return nil
}

// DecodeDate parses a value written by EncodeDate.
func DecodeDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) || !allDigits(s) {
		return time.Time{}, errors.Newf(errors.ErrCodeInvalidDateFormat,
			"date %q is not %d digits (yyyyMMddHHmmss)", s, len(DateLayout))
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.New(errors.ErrCodeInvalidDateFormat,
			fmt.Sprintf("date %q is not a valid time", s), err)
	}
	return t, nil
}

// sizeWidth pads sizes so that string order equals numeric order.
const sizeWidth = 19

// EncodeSize renders n zero-padded so that size ranges compare correctly as strings.
func EncodeSize(n int64) string {
	return fmt.Sprintf("%0*d", sizeWidth, n)
}

// DecodeSize parses a value written by EncodeSize.
func DecodeSize(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
