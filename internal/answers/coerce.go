package answers

import (
	"encoding/json"
	"fmt"
	"strings"

	"example.com/budget-pipeline/backend/internal/normalize"
)

func toBool(value any) (bool, error) {
	switch typed := value.(type) {
	case bool:
		return typed, nil
	case float64:
		return typed != 0, nil
	case json.Number:
		number, err := typed.Float64()
		return number != 0, err
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "yes", "y", "1", "on":
			return true, nil
		case "false", "no", "n", "0", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected a boolean, got %v", value)
}

func toFloat(value any) (float64, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case int:
		return float64(typed), nil
	case json.Number:
		return typed.Float64()
	case string:
		amount, err := normalize.ParseAmount(typed)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", typed)
		}
		return amount.InexactFloat64(), nil
	}
	return 0, fmt.Errorf("expected a number, got %v", value)
}

func toText(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed), nil
	case fmt.Stringer:
		return strings.TrimSpace(typed.String()), nil
	}
	return "", fmt.Errorf("expected text, got %v", value)
}
