// pkg/converter/values.go
package converter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
)

const maxSafeInt = 1 << 53

// ConvertValue converts a scanned engine value to a JSON-safe display value
func (c *TypeConverter) ConvertValue(value interface{}, engineType string) (interface{}, error) {
	// Handle NULL values
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string, bool:
		return v, nil
	case int8, int16, int32, uint8, uint16, uint32:
		return v, nil
	case int:
		return c.convertInt(int64(v)), nil
	case int64:
		return c.convertInt(v), nil
	case uint64:
		if c.config.LargeIntAsString && v > maxSafeInt {
			return strconv.FormatUint(v, 10), nil
		}
		return v, nil
	case *big.Int:
		if v == nil {
			return nil, nil
		}
		if v.IsInt64() {
			return c.convertInt(v.Int64()), nil
		}
		return v.String(), nil
	case float32:
		return c.convertFloat(float64(v)), nil
	case float64:
		return c.convertFloat(v), nil
	case duckdb.Decimal:
		return decimalString(v), nil
	case time.Time:
		return c.convertTime(v, engineType), nil
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d microseconds", v.Months, v.Days, v.Micros), nil
	case [16]byte:
		return uuid.UUID(v).String(), nil
	case []byte:
		return c.convertBytes(v, engineType), nil
	default:
		return c.convertNested(value)
	}
}

func (c *TypeConverter) convertInt(v int64) interface{} {
	if c.config.LargeIntAsString && (v > maxSafeInt || v < -maxSafeInt) {
		return strconv.FormatInt(v, 10)
	}
	return v
}

func (c *TypeConverter) convertFloat(v float64) interface{} {
	if !c.config.NonFiniteAsString {
		return v
	}
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return v
}

// convertTime renders dates and times according to the column type
func (c *TypeConverter) convertTime(v time.Time, engineType string) string {
	switch KindOf(engineType) {
	case KindDate:
		return v.Format("2006-01-02")
	case KindTime:
		return v.Format("15:04:05.999999")
	case KindTimestamp:
		if getBaseType(engineType) == "TIMESTAMP WITH TIME ZONE" || engineType == "TIMESTAMPTZ" {
			return v.Format(time.RFC3339Nano)
		}
		return v.Format(c.config.TimestampLayout)
	default:
		return v.Format(time.RFC3339Nano)
	}
}

// convertBytes keeps text columns readable and encodes binary columns
func (c *TypeConverter) convertBytes(v []byte, engineType string) string {
	switch KindOf(engineType) {
	case KindBinary:
		return base64.StdEncoding.EncodeToString(v)
	case KindUUID:
		if id, err := uuid.FromBytes(v); err == nil {
			return id.String()
		}
	}
	return string(v)
}

// convertToText converts a value to text/string
func (c *TypeConverter) convertToText(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		// Try JSON marshaling for complex types
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(jsonBytes)
	}
}

// decimalString renders a fixed point value without losing digits
func decimalString(d duckdb.Decimal) string {
	if d.Value == nil {
		return "0"
	}
	if d.Scale == 0 {
		return d.Value.String()
	}
	denominator := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	return new(big.Rat).SetFrac(d.Value, denominator).FloatString(int(d.Scale))
}
