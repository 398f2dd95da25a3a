package normalize

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/budget-pipeline/backend/internal/models"
)

// CategoryDebtPayment marks expense lines that service a debt.
const CategoryDebtPayment = "debt_payment"

const CategoryOther = "other"

//go:embed patterns.yaml
var defaultPatterns []byte

type incomePattern struct {
	Type      models.IncomeType      `yaml:"type"`
	Stability models.IncomeStability `yaml:"stability"`
	Keywords  []string               `yaml:"keywords"`
}

type expensePattern struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// PatternTable maps line labels to income types and expense categories.
// Rules are evaluated top to bottom, the first keyword hit wins.
type PatternTable struct {
	Income struct {
		Rules   []incomePattern `yaml:"rules"`
		Default incomePattern   `yaml:"default"`
	} `yaml:"income"`
	Expenses struct {
		Rules   []expensePattern `yaml:"rules"`
		Default expensePattern   `yaml:"default"`
	} `yaml:"expenses"`
}

// DefaultPatterns возвращает встроенную таблицу шаблонов.
func DefaultPatterns() *PatternTable {
	table, err := ParsePatterns(defaultPatterns)
	if err != nil {
		panic(fmt.Sprintf("embedded patterns are invalid: %v", err))
	}
	return table
}

// ParsePatterns разбирает YAML-таблицу шаблонов.
func ParsePatterns(data []byte) (*PatternTable, error) {
	var table PatternTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}

	if !table.Income.Default.Type.Valid() || !table.Income.Default.Stability.Valid() {
		return nil, fmt.Errorf("income default must define a valid type and stability")
	}
	for _, rule := range table.Income.Rules {
		if !rule.Type.Valid() || !rule.Stability.Valid() {
			return nil, fmt.Errorf("invalid income rule %v", rule.Keywords)
		}
	}
	for _, rule := range table.Expenses.Rules {
		if strings.TrimSpace(rule.Category) == "" {
			return nil, fmt.Errorf("expense rule %v has no category", rule.Keywords)
		}
	}
	if strings.TrimSpace(table.Expenses.Default.Category) == "" {
		table.Expenses.Default.Category = CategoryOther
	}

	return &table, nil
}

// MatchIncome подбирает тип и стабильность дохода по названию.
func (t *PatternTable) MatchIncome(label string) (models.IncomeType, models.IncomeStability) {
	lower := strings.ToLower(label)
	for _, rule := range t.Income.Rules {
		if containsAny(lower, rule.Keywords) {
			return rule.Type, rule.Stability
		}
	}
	return t.Income.Default.Type, t.Income.Default.Stability
}

// MatchExpense подбирает категорию расхода по названию.
func (t *PatternTable) MatchExpense(label string) string {
	lower := strings.ToLower(label)
	for _, rule := range t.Expenses.Rules {
		if containsAny(lower, rule.Keywords) {
			return rule.Category
		}
	}
	return t.Expenses.Default.Category
}

func containsAny(value string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(value, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
