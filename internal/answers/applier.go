package answers

import (
	"fmt"
	"sort"
	"strings"

	"example.com/budget-pipeline/backend/internal/clarify"
	"example.com/budget-pipeline/backend/internal/models"
)

// Result is the final model plus everything that could not be applied.
type Result struct {
	Model    models.UnifiedModel
	Applied  []string
	Warnings []models.Warning
}

// Apply применяет ответы модельной корзины к копии частичной модели.
// Ошибки проверки собираются как предупреждения, применение продолжается.
func Apply(partial models.UnifiedModel, modelAnswers map[string]any) Result {
	model := partial.Clone()
	result := Result{Applied: []string{}, Warnings: []models.Warning{}}

	keys := make([]string, 0, len(modelAnswers))
	for key := range modelAnswers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	touchedDebts := make(map[string]bool)
	explicitApproximate := make(map[string]bool)

	for _, key := range keys {
		value := modelAnswers[key]
		var err error

		switch {
		case isEssentialField(key):
			err = applyEssential(&model, strings.TrimPrefix(key, clarify.EssentialPrefix), value)
		case isPreferenceField(key):
			err = applyPreference(&model.Preferences, key, value)
		case isDebtField(key):
			rawID, attribute, _ := ParseDebtField(key)
			var debtID string
			debtID, err = applyDebt(&model, rawID, attribute, value)
			if err == nil {
				if attribute == attrApproximate {
					explicitApproximate[debtID] = true
				} else {
					touchedDebts[debtID] = true
				}
			}
		default:
			err = fmt.Errorf("field is not a model field")
		}

		if err != nil {
			result.Warnings = append(result.Warnings, models.Warning{Field: key, Message: err.Error()})
			continue
		}
		result.Applied = append(result.Applied, key)
	}

	for i := range model.Debts {
		debt := &model.Debts[i]
		if touchedDebts[debt.ID] && !explicitApproximate[debt.ID] && debt.Balance > 0 && debt.InterestRate > 0 {
			debt.Approximate = false
		}
	}

	model.RecomputeSummary()
	result.Model = model
	return result
}

func isPreferenceField(key string) bool {
	_, ok := preferenceFields[key]
	return ok
}

func applyEssential(model *models.UnifiedModel, rawID string, value any) error {
	id, ok := models.ResolveID(model.ExpenseIDs(), rawID)
	if !ok {
		return fmt.Errorf("expense %q does not exist", rawID)
	}

	essential, err := toBool(value)
	if err != nil {
		return err
	}
	model.Expenses[model.FindExpense(id)].Essential = models.BoolPtr(essential)
	return nil
}

func applyPreference(preferences *models.Preferences, key string, value any) error {
	switch key {
	case clarify.FieldOptimizationFocus:
		text, err := toText(value)
		if err != nil {
			return err
		}
		focus := models.OptimizationFocus(strings.ToLower(text))
		if !focus.Valid() {
			return fmt.Errorf("unknown optimization focus %q", text)
		}
		preferences.OptimizationFocus = focus
	case clarify.FieldProtectEssentials:
		protect, err := toBool(value)
		if err != nil {
			return err
		}
		preferences.ProtectEssentials = models.BoolPtr(protect)
	case clarify.FieldMaxChangePerCategory:
		share, err := toFloat(value)
		if err != nil {
			return err
		}
		if share < 0 || share > 1 {
			return fmt.Errorf("value %g must be within [0, 1]", share)
		}
		preferences.MaxDesiredChangePerCategory = models.Float64Ptr(share)
	}
	return nil
}

func applyDebt(model *models.UnifiedModel, rawID, attribute string, value any) (string, error) {
	id, ok := models.ResolveID(model.DebtIDs(), rawID)
	if !ok {
		return "", fmt.Errorf("debt %q does not exist", rawID)
	}
	debt := &model.Debts[model.FindDebt(id)]

	switch attribute {
	case attrBalance, attrMinPayment:
		amount, err := toFloat(value)
		if err != nil {
			return id, err
		}
		if amount < 0 {
			return id, fmt.Errorf("%s must not be negative", attribute)
		}
		if attribute == attrBalance {
			debt.Balance = amount
		} else {
			debt.MinPayment = amount
		}
	case attrInterestRate:
		rate, err := toFloat(value)
		if err != nil {
			return id, err
		}
		if err := models.ValidateInterestRate(rate); err != nil {
			return id, err
		}
		debt.InterestRate = rate
	case attrPriority:
		text, err := toText(value)
		if err != nil {
			return id, err
		}
		priority := models.DebtPriority(strings.ToLower(text))
		if !priority.Valid() {
			return id, fmt.Errorf("unknown priority %q", text)
		}
		debt.Priority = priority
	case attrName:
		text, err := toText(value)
		if err != nil {
			return id, err
		}
		if text == "" {
			return id, fmt.Errorf("name must not be empty")
		}
		debt.Name = text
	case attrApproximate:
		approximate, err := toBool(value)
		if err != nil {
			return id, err
		}
		debt.Approximate = approximate
	}
	return id, nil
}

// MergeProfile переносит профильные ответы в профиль пользователя, а прочие
// ответы складывает под ключ extra_context.
func MergeProfile(profile map[string]any, partition Partition) map[string]any {
	merged := make(map[string]any, len(profile)+len(partition.Profile)+1)
	for key, value := range profile {
		merged[key] = value
	}
	for key, value := range partition.Profile {
		merged[key] = value
	}

	if len(partition.ExtraContext) == 0 {
		return merged
	}

	extra := map[string]any{}
	if existing, ok := merged[models.ProfileExtraContextKey].(map[string]any); ok {
		for key, value := range existing {
			extra[key] = value
		}
	}
	for key, value := range partition.ExtraContext {
		extra[key] = value
	}
	merged[models.ProfileExtraContextKey] = extra
	return merged
}
