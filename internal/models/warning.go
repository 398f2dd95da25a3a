package models

import "strings"

// Warning is a non-fatal problem found while applying user input.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ResolveID находит идентификатор сущности, допуская запись без дефисов ("expense1" для "expense-1").
func ResolveID(ids []string, raw string) (string, bool) {
	for _, id := range ids {
		if id == raw {
			return id, true
		}
	}

	compact := compactID(raw)
	if compact == "" {
		return "", false
	}
	match := ""
	for _, id := range ids {
		if compactID(id) == compact {
			if match != "" {
				return "", false
			}
			match = id
		}
	}
	return match, match != ""
}

// ExpenseIDs возвращает идентификаторы расходов в порядке модели.
func (m UnifiedModel) ExpenseIDs() []string {
	ids := make([]string, len(m.Expenses))
	for i, item := range m.Expenses {
		ids[i] = item.ID
	}
	return ids
}

// DebtIDs возвращает идентификаторы долгов в порядке модели.
func (m UnifiedModel) DebtIDs() []string {
	ids := make([]string, len(m.Debts))
	for i, item := range m.Debts {
		ids[i] = item.ID
	}
	return ids
}

// IncomeIDs возвращает идентификаторы доходов в порядке модели.
func (m UnifiedModel) IncomeIDs() []string {
	ids := make([]string, len(m.Income))
	for i, item := range m.Income {
		ids[i] = item.ID
	}
	return ids
}

func compactID(value string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
