// Package quote renders identifiers and values as SQL text for the query engine.
package quote

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrNulByte is returned for text that cannot be represented in a SQL literal
var ErrNulByte = errors.New("value contains a NUL byte")

// Ident quotes a column or table name, doubling embedded double quotes
func Ident(name string) string {
	return pq.QuoteIdentifier(name)
}

// Idents quotes each name and joins them with ", "
func Idents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = Ident(name)
	}
	return strings.Join(quoted, ", ")
}

// String renders s as a single-quoted literal, doubling embedded single quotes.
// Backslashes are literal in the engine's dialect so no E'' prefix is emitted.
func String(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", ErrNulByte
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

// Value renders an edit value as a SQL literal. nil becomes NULL; every other
// value becomes a string literal the engine casts to the column type.
func Value(v interface{}) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	text, err := Text(v)
	if err != nil {
		return "", err
	}
	return String(text)
}

// Text converts a scalar to the textual form handed to the engine for casting
func Text(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), nil
	case float32:
		return formatFloat(float64(val), 32)
	case float64:
		return formatFloat(val, 64)
	case json.Number:
		return val.String(), nil
	case time.Time:
		return val.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		// Lists and objects are passed as JSON text
		data, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("unsupported value type %T: %w", v, err)
		}
		return string(data), nil
	}
}

func formatFloat(f float64, bits int) (string, error) {
	switch {
	case math.IsNaN(f):
		return "NaN", nil
	case math.IsInf(f, 1):
		return "Infinity", nil
	case math.IsInf(f, -1):
		return "-Infinity", nil
	}
	return strconv.FormatFloat(f, 'f', -1, bits), nil
}
