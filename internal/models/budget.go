package models

import (
	"github.com/shopspring/decimal"
)

type IncomeType string

type IncomeStability string

type DebtPriority string

type OptimizationFocus string

const (
	IncomeTypeEarned   IncomeType = "earned"
	IncomeTypePassive  IncomeType = "passive"
	IncomeTypeTransfer IncomeType = "transfer"

	StabilityStable   IncomeStability = "stable"
	StabilityVariable IncomeStability = "variable"
	StabilitySeasonal IncomeStability = "seasonal"

	PriorityHigh   DebtPriority = "high"
	PriorityMedium DebtPriority = "medium"
	PriorityLow    DebtPriority = "low"

	FocusDebt     OptimizationFocus = "debt"
	FocusSavings  OptimizationFocus = "savings"
	FocusBalanced OptimizationFocus = "balanced"
)

// MaxInterestRate is the upper bound of an annual percentage rate.
// Interest rates are stored as percentages (18.5 means 18.5% APR).
const MaxInterestRate = 100.0

// Valid сообщает, входит ли значение в допустимый набор.
func (t IncomeType) Valid() bool {
	switch t {
	case IncomeTypeEarned, IncomeTypePassive, IncomeTypeTransfer:
		return true
	default:
		return false
	}
}

// Valid сообщает, входит ли значение в допустимый набор.
func (s IncomeStability) Valid() bool {
	switch s {
	case StabilityStable, StabilityVariable, StabilitySeasonal:
		return true
	default:
		return false
	}
}

// Valid сообщает, входит ли значение в допустимый набор.
func (p DebtPriority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Valid сообщает, входит ли значение в допустимый набор.
func (f OptimizationFocus) Valid() bool {
	switch f {
	case FocusDebt, FocusSavings, FocusBalanced:
		return true
	default:
		return false
	}
}

type Income struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	MonthlyAmount float64         `json:"monthly_amount"`
	Type          IncomeType      `json:"type"`
	Stability     IncomeStability `json:"stability"`
}

// Expense.Essential is nil while undetermined; false is an explicit answer.
type Expense struct {
	ID            string  `json:"id"`
	Category      string  `json:"category"`
	MonthlyAmount float64 `json:"monthly_amount"`
	Essential     *bool   `json:"essential"`
	Notes         string  `json:"notes"`
}

type Debt struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Balance      float64      `json:"balance"`
	InterestRate float64      `json:"interest_rate"`
	MinPayment   float64      `json:"min_payment"`
	Priority     DebtPriority `json:"priority"`
	Approximate  bool         `json:"approximate"`
}

// Preferences keeps unset fields distinguishable from zero values.
type Preferences struct {
	OptimizationFocus           OptimizationFocus `json:"optimization_focus,omitempty"`
	ProtectEssentials           *bool             `json:"protect_essentials"`
	MaxDesiredChangePerCategory *float64          `json:"max_desired_change_per_category"`
}

type Summary struct {
	TotalIncome   float64 `json:"total_income"`
	TotalExpenses float64 `json:"total_expenses"`
	Surplus       float64 `json:"surplus"`
}

// UnifiedModel is the canonical budget representation shared by every pipeline stage.
type UnifiedModel struct {
	Income      []Income    `json:"income"`
	Expenses    []Expense   `json:"expenses"`
	Debts       []Debt      `json:"debts"`
	Preferences Preferences `json:"preferences"`
	Summary     Summary     `json:"summary"`
}

// RecomputeSummary пересчитывает производные итоги модели.
func (m *UnifiedModel) RecomputeSummary() {
	income := decimal.Zero
	for _, item := range m.Income {
		income = income.Add(decimal.NewFromFloat(item.MonthlyAmount))
	}

	expenses := decimal.Zero
	for _, item := range m.Expenses {
		expenses = expenses.Add(decimal.NewFromFloat(item.MonthlyAmount))
	}

	totalIncome := income.Round(2).InexactFloat64()
	totalExpenses := expenses.Round(2).InexactFloat64()
	m.Summary = Summary{
		TotalIncome:   totalIncome,
		TotalExpenses: totalExpenses,
		Surplus:       totalIncome - totalExpenses,
	}
}

// CategoryShares возвращает долю каждой категории в общих расходах.
func (m UnifiedModel) CategoryShares() map[string]float64 {
	shares := make(map[string]float64)
	total := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	for _, item := range m.Expenses {
		amount := decimal.NewFromFloat(item.MonthlyAmount)
		total = total.Add(amount)
		byCategory[item.Category] = byCategory[item.Category].Add(amount)
	}

	if total.IsZero() {
		return shares
	}

	for category, amount := range byCategory {
		shares[category] = amount.Div(total).Round(4).InexactFloat64()
	}
	return shares
}

// FindExpense возвращает индекс расхода по идентификатору.
func (m UnifiedModel) FindExpense(id string) int {
	for i := range m.Expenses {
		if m.Expenses[i].ID == id {
			return i
		}
	}
	return -1
}

// FindIncome возвращает индекс дохода по идентификатору.
func (m UnifiedModel) FindIncome(id string) int {
	for i := range m.Income {
		if m.Income[i].ID == id {
			return i
		}
	}
	return -1
}

// FindDebt возвращает индекс долга по идентификатору.
func (m UnifiedModel) FindDebt(id string) int {
	for i := range m.Debts {
		if m.Debts[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone возвращает глубокую копию модели.
func (m UnifiedModel) Clone() UnifiedModel {
	out := UnifiedModel{
		Income:   append([]Income{}, m.Income...),
		Expenses: make([]Expense, len(m.Expenses)),
		Debts:    append([]Debt{}, m.Debts...),
		Summary:  m.Summary,
		Preferences: Preferences{
			OptimizationFocus: m.Preferences.OptimizationFocus,
		},
	}

	for i, item := range m.Expenses {
		if item.Essential != nil {
			item.Essential = BoolPtr(*item.Essential)
		}
		out.Expenses[i] = item
	}

	if m.Preferences.ProtectEssentials != nil {
		out.Preferences.ProtectEssentials = BoolPtr(*m.Preferences.ProtectEssentials)
	}
	if m.Preferences.MaxDesiredChangePerCategory != nil {
		out.Preferences.MaxDesiredChangePerCategory = Float64Ptr(*m.Preferences.MaxDesiredChangePerCategory)
	}

	return out
}

func BoolPtr(value bool) *bool {
	return &value
}

func Float64Ptr(value float64) *float64 {
	return &value
}
