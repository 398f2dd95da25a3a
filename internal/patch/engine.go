package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"example.com/budget-pipeline/backend/internal/models"
)

// Nil fields mean "no change".
type IncomeUpdate struct {
	ID            string                  `json:"id" validate:"required"`
	Name          *string                 `json:"name"`
	MonthlyAmount *float64                `json:"monthly_amount" validate:"omitempty,gte=0"`
	Type          *models.IncomeType      `json:"type" validate:"omitempty,oneof=earned passive transfer"`
	Stability     *models.IncomeStability `json:"stability" validate:"omitempty,oneof=stable variable seasonal"`
}

type ExpenseUpdate struct {
	ID            string   `json:"id" validate:"required"`
	Category      *string  `json:"category" validate:"omitempty,min=1"`
	MonthlyAmount *float64 `json:"monthly_amount" validate:"omitempty,gte=0"`
	Essential     *bool    `json:"essential"`
	Notes         *string  `json:"notes"`
}

type DebtUpdate struct {
	ID           string               `json:"id" validate:"required"`
	Name         *string              `json:"name"`
	Balance      *float64             `json:"balance" validate:"omitempty,gte=0"`
	InterestRate *float64             `json:"interest_rate" validate:"omitempty,gte=0,lte=100"`
	MinPayment   *float64             `json:"min_payment" validate:"omitempty,gte=0"`
	Priority     *models.DebtPriority `json:"priority" validate:"omitempty,oneof=high medium low"`
	Approximate  *bool                `json:"approximate"`
}

type PreferencesUpdate struct {
	OptimizationFocus           *models.OptimizationFocus `json:"optimization_focus" validate:"omitempty,oneof=debt savings balanced"`
	ProtectEssentials           *bool                     `json:"protect_essentials"`
	MaxDesiredChangePerCategory *float64                  `json:"max_desired_change_per_category" validate:"omitempty,gte=0,lte=1"`
}

// Request is a set of per-entity updates addressed by id.
type Request struct {
	Income      []IncomeUpdate     `json:"income" validate:"dive"`
	Expenses    []ExpenseUpdate    `json:"expenses" validate:"dive"`
	Debts       []DebtUpdate       `json:"debts" validate:"dive"`
	Preferences *PreferencesUpdate `json:"preferences"`
}

// Result is the patched model and the updates that matched nothing.
type Result struct {
	Model    models.UnifiedModel
	Warnings []models.Warning
}

var ErrInvalidPatch = errors.New("invalid patch")

var validate = validator.New()

// Empty сообщает, что запрос не меняет модель.
func (r Request) Empty() bool {
	return len(r.Income) == 0 && len(r.Expenses) == 0 && len(r.Debts) == 0 && r.Preferences == nil
}

// Validate проверяет все обновления до применения, чтобы патч применялся целиком или не применялся вовсе.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			messages := make([]string, 0, len(fieldErrors))
			for _, fieldError := range fieldErrors {
				messages = append(messages, describe(fieldError))
			}
			return fmt.Errorf("%w: %s", ErrInvalidPatch, strings.Join(messages, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	if r.Preferences != nil && r.Preferences.OptimizationFocus != nil && *r.Preferences.OptimizationFocus == "" {
		return fmt.Errorf("%w: optimization_focus must not be empty", ErrInvalidPatch)
	}
	return nil
}

// Apply применяет обновления к копии финальной модели. Обновление с неизвестным
// идентификатором пропускается и возвращается как предупреждение.
func Apply(model models.UnifiedModel, request Request) (Result, error) {
	if err := request.Validate(); err != nil {
		return Result{}, err
	}

	patched := model.Clone()
	warnings := make([]models.Warning, 0)
	totalsChanged := false

	for _, update := range request.Income {
		index := patched.FindIncome(update.ID)
		if index < 0 {
			warnings = append(warnings, unknown("income", update.ID))
			continue
		}
		item := &patched.Income[index]
		if update.Name != nil {
			item.Name = strings.TrimSpace(*update.Name)
		}
		if update.MonthlyAmount != nil {
			item.MonthlyAmount = *update.MonthlyAmount
		}
		if update.Type != nil {
			item.Type = *update.Type
		}
		if update.Stability != nil {
			item.Stability = *update.Stability
		}
		totalsChanged = true
	}

	for _, update := range request.Expenses {
		index := patched.FindExpense(update.ID)
		if index < 0 {
			warnings = append(warnings, unknown("expense", update.ID))
			continue
		}
		item := &patched.Expenses[index]
		if update.Category != nil {
			item.Category = strings.TrimSpace(*update.Category)
		}
		if update.MonthlyAmount != nil {
			item.MonthlyAmount = *update.MonthlyAmount
		}
		if update.Essential != nil {
			item.Essential = models.BoolPtr(*update.Essential)
		}
		if update.Notes != nil {
			item.Notes = *update.Notes
		}
		totalsChanged = true
	}

	for _, update := range request.Debts {
		index := patched.FindDebt(update.ID)
		if index < 0 {
			warnings = append(warnings, unknown("debt", update.ID))
			continue
		}
		item := &patched.Debts[index]
		if update.Name != nil {
			item.Name = strings.TrimSpace(*update.Name)
		}
		if update.Balance != nil {
			item.Balance = *update.Balance
		}
		if update.InterestRate != nil {
			item.InterestRate = *update.InterestRate
		}
		if update.MinPayment != nil {
			item.MinPayment = *update.MinPayment
		}
		if update.Priority != nil {
			item.Priority = *update.Priority
		}
		if update.Approximate != nil {
			item.Approximate = *update.Approximate
		}
	}

	if update := request.Preferences; update != nil {
		if update.OptimizationFocus != nil {
			patched.Preferences.OptimizationFocus = *update.OptimizationFocus
		}
		if update.ProtectEssentials != nil {
			patched.Preferences.ProtectEssentials = models.BoolPtr(*update.ProtectEssentials)
		}
		if update.MaxDesiredChangePerCategory != nil {
			patched.Preferences.MaxDesiredChangePerCategory = models.Float64Ptr(*update.MaxDesiredChangePerCategory)
		}
	}

	if totalsChanged {
		patched.RecomputeSummary()
	}

	return Result{Model: patched, Warnings: warnings}, nil
}

func unknown(kind, id string) models.Warning {
	return models.Warning{Field: kind + ":" + id, Message: fmt.Sprintf("%s %q does not exist, update skipped", kind, id)}
}

func describe(fieldError validator.FieldError) string {
	field := fieldError.Namespace()
	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return field + " must be at least " + fieldError.Param()
	case "lte":
		return field + " must be at most " + fieldError.Param()
	case "oneof":
		return field + " must be one of: " + fieldError.Param()
	default:
		return field + " is invalid"
	}
}
