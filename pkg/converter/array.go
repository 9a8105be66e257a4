// pkg/converter/array.go
package converter

import (
	"fmt"
	"reflect"

	"github.com/marcboeker/go-duckdb"
)

// convertNested handles lists, structs and maps returned by the engine
func (c *TypeConverter) convertNested(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			converted, err := c.ConvertValue(item, "")
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			result[i] = converted
		}
		return result, nil

	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, item := range v {
			converted, err := c.ConvertValue(item, "")
			if err != nil {
				return nil, fmt.Errorf("struct field %s: %w", key, err)
			}
			result[key] = converted
		}
		return result, nil

	case duckdb.Map:
		// Map keys may be any type; JSON objects need string keys
		result := make(map[string]interface{}, len(v))
		for key, item := range v {
			converted, err := c.ConvertValue(item, "")
			if err != nil {
				return nil, fmt.Errorf("map entry %v: %w", key, err)
			}
			result[fmt.Sprintf("%v", key)] = converted
		}
		return result, nil

	default:
		// Check if value is a slice using reflection
		val := reflect.ValueOf(value)
		if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
			length := val.Len()
			result := make([]interface{}, length)
			for i := 0; i < length; i++ {
				converted, err := c.ConvertValue(val.Index(i).Interface(), "")
				if err != nil {
					return nil, fmt.Errorf("list element %d: %w", i, err)
				}
				result[i] = converted
			}
			return result, nil
		}

		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}
