package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnType selects the default codec for a column. It is only consulted
// when no explicit Decode/Encode functions are supplied.
type ColumnType int

const (
	// Opaque passes values through unchanged (byte slices are normalized
	// to strings so they marshal as JSON text).
	Opaque ColumnType = iota

	// DateTime coerces between stored timestamps and RFC 3339 text.
	DateTime

	// Decimal coerces between stored decimals and their exact textual
	// representation, avoiding floating-point drift.
	Decimal
)

// DecodeFunc transforms a storage value into its API representation.
type DecodeFunc func(v any) (any, error)

// EncodeFunc transforms an API value into its storage representation.
type EncodeFunc func(v any) (any, error)

// decodeOpaque is the identity read transform. MySQL returns text columns
// as byte slices; those are normalized to strings.
func decodeOpaque(v any) (any, error) {
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func encodeOpaque(v any) (any, error) {
	return v, nil
}

func decodeDateTime(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t.Format(time.RFC3339), nil
	case []byte:
		return string(t), nil
	case string:
		return t, nil
	default:
		return nil, fmt.Errorf("cannot decode %T as date-time", v)
	}
}

// dateTimeFormats are accepted on write, most specific first.
var dateTimeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func encodeDateTime(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t, nil
	case string:
		for _, format := range dateTimeFormats {
			if parsed, err := time.Parse(format, t); err == nil {
				return parsed, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as date-time", t)
	default:
		return nil, fmt.Errorf("cannot encode %T as date-time", v)
	}
}

func decodeDecimal(v any) (any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return decimalString(string(d))
	case string:
		return decimalString(d)
	case int64:
		return decimal.NewFromInt(d).String(), nil
	case float64:
		return decimal.NewFromFloat(d).String(), nil
	default:
		return nil, fmt.Errorf("cannot decode %T as decimal", v)
	}
}

func decimalString(s string) (any, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d.String(), nil
}

// encodeDecimal produces a decimal.Decimal, which implements driver.Valuer
// and is therefore passed to the database in exact textual form.
func encodeDecimal(v any) (any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case string:
		return decimal.NewFromString(d)
	case json.Number:
		return decimal.NewFromString(d.String())
	case int64:
		return decimal.NewFromInt(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case float64:
		return decimal.NewFromFloat(d), nil
	default:
		return nil, fmt.Errorf("cannot encode %T as decimal", v)
	}
}

func defaultDecode(t ColumnType) DecodeFunc {
	switch t {
	case DateTime:
		return decodeDateTime
	case Decimal:
		return decodeDecimal
	default:
		return decodeOpaque
	}
}

func defaultEncode(t ColumnType) EncodeFunc {
	switch t {
	case DateTime:
		return encodeDateTime
	case Decimal:
		return encodeDecimal
	default:
		return encodeOpaque
	}
}
