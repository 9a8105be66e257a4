// pkg/converter/mapping.go
package converter

import (
	"strings"
)

// Display kinds reported to clients
const (
	KindString    = "string"
	KindInteger   = "integer"
	KindFloat     = "float"
	KindDecimal   = "decimal"
	KindBoolean   = "boolean"
	KindDate      = "date"
	KindTime      = "time"
	KindTimestamp = "timestamp"
	KindInterval  = "interval"
	KindBinary    = "binary"
	KindUUID      = "uuid"
	KindList      = "list"
	KindStruct    = "struct"
	KindMap       = "map"
	KindUnknown   = "unknown"
)

// getBaseType extracts the base type from a complex type definition
func getBaseType(fullType string) string {
	parts := strings.Split(fullType, "(")
	return strings.TrimSpace(parts[0])
}

// KindOf maps an engine type name to a display kind
func KindOf(engineType string) string {
	engineType = strings.ToUpper(strings.TrimSpace(engineType))
	if engineType == "" {
		return KindUnknown
	}

	// Nested types
	if strings.HasSuffix(engineType, "]") {
		return KindList
	}
	baseType := getBaseType(engineType)

	switch baseType {
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR", "JSON", "ENUM":
		return KindString
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT":
		return KindInteger
	case "FLOAT", "REAL", "DOUBLE":
		return KindFloat
	case "DECIMAL", "NUMERIC":
		return KindDecimal
	case "BOOLEAN", "BOOL":
		return KindBoolean
	case "DATE":
		return KindDate
	case "TIME", "TIME WITH TIME ZONE", "TIMETZ":
		return KindTime
	case "TIMESTAMP", "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ",
		"TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return KindTimestamp
	case "INTERVAL":
		return KindInterval
	case "BLOB", "BYTEA", "BINARY", "VARBINARY", "BIT":
		return KindBinary
	case "UUID":
		return KindUUID
	case "STRUCT":
		return KindStruct
	case "MAP":
		return KindMap
	default:
		return KindUnknown
	}
}
