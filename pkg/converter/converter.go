// pkg/converter/converter.go
package converter

import (
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/model"
)

// TypeConverter turns engine values into JSON-safe display values
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for value conversion
type TypeConverterConfig struct {
	// Integers outside +/-2^53 are rendered as strings so clients do not lose precision
	LargeIntAsString bool
	// Layout used for TIMESTAMP values
	TimestampLayout string
	// Render NaN and infinities as strings instead of failing JSON encoding
	NonFiniteAsString bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		LargeIntAsString:  true,
		TimestampLayout:   "2006-01-02 15:04:05.999999",
		NonFiniteAsString: true,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// ConvertRow converts every value of a scanned row in place and returns it.
// Columns not present in the column list are converted without a type hint.
func (c *TypeConverter) ConvertRow(row map[string]interface{}, columns []model.Column) map[string]interface{} {
	types := make(map[string]string, len(columns))
	for _, col := range columns {
		types[col.Name] = col.DataType
	}

	for name, value := range row {
		converted, err := c.ConvertValue(value, types[name])
		if err != nil {
			c.logger.Debug("Falling back to text for value",
				zap.String("column", name),
				zap.Error(err))
			converted = c.convertToText(value)
		}
		row[name] = converted
	}
	return row
}
