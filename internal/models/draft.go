package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

const (
	LineKindIncome  = "income"
	LineKindExpense = "expense"
	LineKindDebt    = "debt"
)

// RawAmount keeps the amount exactly as it appeared in the export.
// JSON numbers and strings are both accepted.
type RawAmount string

// UnmarshalJSON принимает сумму как строку или число.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = ""
		return nil
	}

	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*a = RawAmount(strings.TrimSpace(value))
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return errors.New("amount must be a number or a string")
	}
	*a = RawAmount(number.String())
	return nil
}

type DraftLine struct {
	Label    string    `json:"label"`
	Amount   RawAmount `json:"amount"`
	Kind     string    `json:"kind,omitempty"`
	Category string    `json:"category,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// Draft is the raw ingested budget before structuring.
// Structured is set when the client already built a unified model.
type Draft struct {
	Lines          []DraftLine    `json:"lines"`
	DetectedFormat string         `json:"detected_format"`
	FormatHints    map[string]any `json:"format_hints,omitempty"`
	Structured     *UnifiedModel  `json:"structured,omitempty"`
	PlannerInputs  map[string]any `json:"planner_inputs,omitempty"`
}
