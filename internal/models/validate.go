package models

import (
	"fmt"
	"strings"
)

// Validate проверяет перечисления, диапазоны и уникальность идентификаторов.
func (m UnifiedModel) Validate() error {
	seen := make(map[string]struct{})
	checkID := func(id string) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("entity id is required")
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate entity id %q", id)
		}
		seen[id] = struct{}{}
		return nil
	}

	for _, item := range m.Income {
		if err := checkID(item.ID); err != nil {
			return err
		}
		if item.MonthlyAmount < 0 {
			return fmt.Errorf("income %s: monthly_amount must not be negative", item.ID)
		}
		if !item.Type.Valid() {
			return fmt.Errorf("income %s: invalid type %q", item.ID, item.Type)
		}
		if !item.Stability.Valid() {
			return fmt.Errorf("income %s: invalid stability %q", item.ID, item.Stability)
		}
	}

	for _, item := range m.Expenses {
		if err := checkID(item.ID); err != nil {
			return err
		}
		if item.MonthlyAmount < 0 {
			return fmt.Errorf("expense %s: monthly_amount must not be negative", item.ID)
		}
		if strings.TrimSpace(item.Category) == "" {
			return fmt.Errorf("expense %s: category is required", item.ID)
		}
	}

	for _, item := range m.Debts {
		if err := checkID(item.ID); err != nil {
			return err
		}
		if item.Balance < 0 || item.MinPayment < 0 {
			return fmt.Errorf("debt %s: balance and min_payment must not be negative", item.ID)
		}
		if err := ValidateInterestRate(item.InterestRate); err != nil {
			return fmt.Errorf("debt %s: %w", item.ID, err)
		}
		if !item.Priority.Valid() {
			return fmt.Errorf("debt %s: invalid priority %q", item.ID, item.Priority)
		}
	}

	return m.Preferences.Validate()
}

// Validate проверяет заданные поля предпочтений.
func (p Preferences) Validate() error {
	if p.OptimizationFocus != "" && !p.OptimizationFocus.Valid() {
		return fmt.Errorf("invalid optimization_focus %q", p.OptimizationFocus)
	}
	if p.MaxDesiredChangePerCategory != nil {
		if value := *p.MaxDesiredChangePerCategory; value < 0 || value > 1 {
			return fmt.Errorf("max_desired_change_per_category must be within [0, 1]")
		}
	}
	return nil
}

// ValidateInterestRate проверяет годовую ставку в процентах.
func ValidateInterestRate(rate float64) error {
	if rate < 0 || rate > MaxInterestRate {
		return fmt.Errorf("interest_rate must be a percentage within [0, %g]", MaxInterestRate)
	}
	return nil
}
