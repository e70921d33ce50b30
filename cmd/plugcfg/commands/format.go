package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/secret"
)

const maxCellWidth = 50

// formatValue renders an encoded option value on one line: scalars plainly,
// structured values as compact JSON, absent values as "null".
func formatValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case secret.Handle:
		return t.String(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to format value")
	}
	return string(data), nil
}

// cell is formatValue truncated for table output.
func cell(v any) string {
	s, err := formatValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(s) > maxCellWidth {
		return s[:maxCellWidth-3] + "..."
	}
	return s
}

// parseFormat validates an output format flag.
func parseFormat(s string) (layer.Format, error) {
	f, err := layer.ParseFormat(s)
	if err != nil {
		return "", usageError(err)
	}
	return f, nil
}
