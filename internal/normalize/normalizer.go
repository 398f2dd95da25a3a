package normalize

import (
	"fmt"
	"strings"

	"example.com/budget-pipeline/backend/internal/models"
)

type Normalizer struct {
	patterns *PatternTable
}

// New создает нормализатор; nil означает встроенную таблицу шаблонов.
func New(patterns *PatternTable) *Normalizer {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &Normalizer{patterns: patterns}
}

type idSequence struct {
	income  int
	expense int
	debt    int
	used    map[string]struct{}
}

func (s *idSequence) next(kind string) string {
	for {
		var id string
		switch kind {
		case models.LineKindIncome:
			s.income++
			id = fmt.Sprintf("income-%d", s.income)
		case models.LineKindExpense:
			s.expense++
			id = fmt.Sprintf("expense-%d", s.expense)
		default:
			s.debt++
			id = fmt.Sprintf("debt-%d", s.debt)
		}
		if _, taken := s.used[id]; !taken {
			s.used[id] = struct{}{}
			return id
		}
	}
}

// Normalize строит единую модель бюджета из черновика. Результат
// детерминирован: одинаковый черновик дает одинаковые идентификаторы.
func (n *Normalizer) Normalize(draft models.Draft) (models.UnifiedModel, error) {
	if draft.Structured != nil {
		return n.normalizeStructured(*draft.Structured)
	}

	model := models.UnifiedModel{
		Income:   []models.Income{},
		Expenses: []models.Expense{},
		Debts:    []models.Debt{},
	}
	ids := &idSequence{used: map[string]struct{}{}}
	parsed := 0

	for _, line := range draft.Lines {
		label := strings.TrimSpace(line.Label)
		amount, err := ParseAmount(string(line.Amount))
		if err != nil {
			continue
		}

		kind := lineKind(line.Kind)
		if amount.IsZero() && kind != models.LineKindDebt {
			continue
		}
		if kind == "" {
			kind = models.LineKindIncome
			if amount.IsNegative() {
				kind = models.LineKindExpense
			}
		}
		value := amount.Abs().Round(2).InexactFloat64()
		if label == "" {
			label = "Unlabeled " + kind
		}

		switch kind {
		case models.LineKindIncome:
			incomeType, stability := n.patterns.MatchIncome(label)
			model.Income = append(model.Income, models.Income{
				ID:            ids.next(kind),
				Name:          label,
				MonthlyAmount: value,
				Type:          incomeType,
				Stability:     stability,
			})
		case models.LineKindExpense:
			category := categoryHint(line.Category)
			if category == "" {
				category = n.patterns.MatchExpense(label)
			}
			model.Expenses = append(model.Expenses, models.Expense{
				ID:            ids.next(kind),
				Category:      category,
				MonthlyAmount: value,
				Notes:         expenseNotes(label, line.Notes),
			})
			if category == CategoryDebtPayment {
				model.Debts = append(model.Debts, models.Debt{
					ID:          ids.next(models.LineKindDebt),
					Name:        label,
					MinPayment:  value,
					Priority:    models.PriorityMedium,
					Approximate: true,
				})
			}
		case models.LineKindDebt:
			model.Debts = append(model.Debts, models.Debt{
				ID:          ids.next(kind),
				Name:        label,
				Balance:     value,
				Priority:    models.PriorityMedium,
				Approximate: true,
			})
		}
		parsed++
	}

	if parsed == 0 {
		return models.UnifiedModel{}, &models.FormatError{Reason: "no parseable budget lines"}
	}

	model.RecomputeSummary()
	return model, nil
}

func (n *Normalizer) normalizeStructured(source models.UnifiedModel) (models.UnifiedModel, error) {
	model := source.Clone()
	if model.Income == nil {
		model.Income = []models.Income{}
	}
	if model.Expenses == nil {
		model.Expenses = []models.Expense{}
	}
	if model.Debts == nil {
		model.Debts = []models.Debt{}
	}
	if len(model.Income)+len(model.Expenses)+len(model.Debts) == 0 {
		return models.UnifiedModel{}, &models.FormatError{Reason: "budget has no income, expenses or debts"}
	}

	ids := &idSequence{used: map[string]struct{}{}}
	claim := func(id, kind string) string {
		id = strings.TrimSpace(id)
		if id == "" {
			return ids.next(kind)
		}
		if _, taken := ids.used[id]; taken {
			return ids.next(kind)
		}
		ids.used[id] = struct{}{}
		return id
	}

	for i := range model.Income {
		item := &model.Income[i]
		item.ID = claim(item.ID, models.LineKindIncome)
		incomeType, stability := n.patterns.MatchIncome(item.Name)
		if item.Type == "" {
			item.Type = incomeType
		}
		if item.Stability == "" {
			item.Stability = stability
		}
	}
	for i := range model.Expenses {
		item := &model.Expenses[i]
		item.ID = claim(item.ID, models.LineKindExpense)
		if strings.TrimSpace(item.Category) == "" {
			item.Category = n.patterns.MatchExpense(item.Notes)
		}
	}
	for i := range model.Debts {
		item := &model.Debts[i]
		item.ID = claim(item.ID, models.LineKindDebt)
		if item.Priority == "" {
			item.Priority = models.PriorityMedium
		}
	}

	if err := model.Validate(); err != nil {
		return models.UnifiedModel{}, &models.FormatError{Reason: err.Error()}
	}

	model.RecomputeSummary()
	return model, nil
}

func lineKind(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "income", "credit", "in", "earning":
		return models.LineKindIncome
	case "expense", "debit", "out", "spending", "bill":
		return models.LineKindExpense
	case "debt", "liability", "loan":
		return models.LineKindDebt
	default:
		return ""
	}
}

func categoryHint(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == '_'
	}), "_")
}

func expenseNotes(label, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return label
	}
	return label + ": " + notes
}
