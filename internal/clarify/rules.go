package clarify

import (
	"fmt"
	"sort"
	"strings"

	"example.com/budget-pipeline/backend/internal/models"
)

// Field ids understood by the answer classifier.
const (
	FieldOptimizationFocus    = "optimization_focus"
	FieldProtectEssentials    = "protect_essentials"
	FieldMaxChangePerCategory = "max_desired_change_per_category"
	FieldPrimaryGoal          = "primary_goal"
	FieldFinancialPhilosophy  = "financial_philosophy"

	EssentialPrefix = "essential_"
	DebtPrefix      = "debt_"
)

const (
	groupEssentials  = "essentials"
	groupDebts       = "debts"
	groupPreferences = "preferences"
	groupContext     = "context"
)

var groupTitles = map[string]string{
	groupEssentials:  "Essential expenses",
	groupDebts:       "Debt details",
	groupPreferences: "Optimization preferences",
	groupContext:     "Your goals",
}

var groupOrder = []string{groupEssentials, groupDebts, groupPreferences, groupContext}

type candidate struct {
	group    string
	question models.Question
}

// EssentialField возвращает идентификатор поля для флага essential расхода.
func EssentialField(expenseID string) string {
	return EssentialPrefix + expenseID
}

// DebtField возвращает идентификатор поля для атрибута долга.
func DebtField(debtID, attribute string) string {
	return DebtPrefix + debtID + "_" + attribute
}

// Deterministic строит вопросы по фиксированной таблице правил.
// Одинаковый вход всегда дает одинаковый результат.
func Deterministic(in Input, maxQuestions int) models.ClarificationResult {
	candidates := make([]candidate, 0)
	candidates = append(candidates, essentialGaps(in.Model)...)
	candidates = append(candidates, debtGaps(in.Model)...)
	candidates = append(candidates, preferenceGaps(in.Model.Preferences)...)
	candidates = append(candidates, contextGaps(in)...)

	total := len(candidates)
	if maxQuestions > 0 && len(candidates) > maxQuestions {
		candidates = candidates[:maxQuestions]
	}

	questions := make([]models.Question, 0, len(candidates))
	grouped := make(map[string][]string)
	for _, item := range candidates {
		questions = append(questions, item.question)
		grouped[item.group] = append(grouped[item.group], item.question.ID)
	}

	groups := make([]models.QuestionGroup, 0)
	for _, id := range groupOrder {
		if ids, ok := grouped[id]; ok {
			groups = append(groups, models.QuestionGroup{ID: id, Title: groupTitles[id], QuestionIDs: ids})
		}
	}

	return models.ClarificationResult{
		Questions:          questions,
		NeedsClarification: len(questions) > 0,
		Analysis:           analysis(in.Model, len(questions), total),
		QuestionGroups:     groups,
		NextSteps:          nextSteps(len(questions) > 0),
	}
}

func essentialGaps(model models.UnifiedModel) []candidate {
	expenses := make([]models.Expense, 0, len(model.Expenses))
	for _, item := range model.Expenses {
		if item.Essential == nil {
			expenses = append(expenses, item)
		}
	}

	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].MonthlyAmount != expenses[j].MonthlyAmount {
			return expenses[i].MonthlyAmount > expenses[j].MonthlyAmount
		}
		return expenses[i].ID < expenses[j].ID
	})

	out := make([]candidate, 0, len(expenses))
	for _, item := range expenses {
		field := EssentialField(item.ID)
		out = append(out, candidate{
			group: groupEssentials,
			question: models.Question{
				ID:          "q_" + field,
				FieldID:     field,
				Prompt:      fmt.Sprintf("Is %q (%s per month) an essential expense?", expenseLabel(item), formatAmount(item.MonthlyAmount)),
				Description: "Essential expenses are protected when we look for savings.",
				Component:   models.ComponentToggle,
				Constraints: &models.QuestionConstraints{Default: false},
			},
		})
	}
	return out
}

func debtGaps(model models.UnifiedModel) []candidate {
	out := make([]candidate, 0)
	for _, debt := range model.Debts {
		name := debt.Name
		if strings.TrimSpace(name) == "" {
			name = debt.ID
		}

		if debt.InterestRate <= 0 {
			field := DebtField(debt.ID, "interest_rate")
			out = append(out, candidate{
				group: groupDebts,
				question: models.Question{
					ID:          "q_" + field,
					FieldID:     field,
					Prompt:      fmt.Sprintf("What is the annual interest rate on %q?", name),
					Description: "Enter the APR as a percentage, for example 18.5.",
					Component:   models.ComponentNumberInput,
					Constraints: &models.QuestionConstraints{
						Minimum: models.Float64Ptr(0),
						Maximum: models.Float64Ptr(models.MaxInterestRate),
						Step:    models.Float64Ptr(0.1),
						Unit:    "%",
					},
				},
			})
		}

		if debt.Balance <= 0 {
			field := DebtField(debt.ID, "balance")
			out = append(out, candidate{
				group: groupDebts,
				question: models.Question{
					ID:        "q_" + field,
					FieldID:   field,
					Prompt:    fmt.Sprintf("What is the outstanding balance on %q?", name),
					Component: models.ComponentNumberInput,
					Constraints: &models.QuestionConstraints{
						Minimum: models.Float64Ptr(0),
						Step:    models.Float64Ptr(1),
					},
				},
			})
		}

		if debt.Approximate {
			field := DebtField(debt.ID, "priority")
			out = append(out, candidate{
				group: groupDebts,
				question: models.Question{
					ID:        "q_" + field,
					FieldID:   field,
					Prompt:    fmt.Sprintf("How urgent is paying off %q?", name),
					Component: models.ComponentDropdown,
					Options: []models.QuestionOption{
						{Label: "High", Value: string(models.PriorityHigh)},
						{Label: "Medium", Value: string(models.PriorityMedium)},
						{Label: "Low", Value: string(models.PriorityLow)},
					},
					Constraints: &models.QuestionConstraints{Default: string(models.PriorityMedium)},
				},
			})
		}
	}
	return out
}

func preferenceGaps(preferences models.Preferences) []candidate {
	out := make([]candidate, 0, 3)
	if preferences.OptimizationFocus == "" {
		out = append(out, candidate{
			group: groupPreferences,
			question: models.Question{
				ID:        "q_" + FieldOptimizationFocus,
				FieldID:   FieldOptimizationFocus,
				Prompt:    "What should the plan optimize for first?",
				Component: models.ComponentDropdown,
				Options: []models.QuestionOption{
					{Label: "Pay down debt", Value: string(models.FocusDebt)},
					{Label: "Grow savings", Value: string(models.FocusSavings)},
					{Label: "Balanced", Value: string(models.FocusBalanced)},
				},
				Constraints: &models.QuestionConstraints{Default: string(models.FocusBalanced)},
			},
		})
	}

	if preferences.ProtectEssentials == nil {
		out = append(out, candidate{
			group: groupPreferences,
			question: models.Question{
				ID:          "q_" + FieldProtectEssentials,
				FieldID:     FieldProtectEssentials,
				Prompt:      "Should essential expenses be left untouched by suggestions?",
				Component:   models.ComponentToggle,
				Constraints: &models.QuestionConstraints{Default: true},
			},
		})
	}

	if preferences.MaxDesiredChangePerCategory == nil {
		out = append(out, candidate{
			group: groupPreferences,
			question: models.Question{
				ID:          "q_" + FieldMaxChangePerCategory,
				FieldID:     FieldMaxChangePerCategory,
				Prompt:      "How much are you willing to change a single category?",
				Description: "Share of the current amount, from 0 (no change) to 1 (cut entirely).",
				Component:   models.ComponentSlider,
				Constraints: &models.QuestionConstraints{
					Minimum: models.Float64Ptr(0),
					Maximum: models.Float64Ptr(1),
					Step:    models.Float64Ptr(0.05),
					Default: 0.2,
				},
			},
		})
	}
	return out
}

func contextGaps(in Input) []candidate {
	out := make([]candidate, 0, 2)
	if strings.TrimSpace(in.UserQuery) == "" && !hasValue(in.UserProfile, FieldPrimaryGoal) && !hasValue(in.FoundationalContext, FieldPrimaryGoal) {
		out = append(out, candidate{
			group: groupContext,
			question: models.Question{
				ID:        "q_" + FieldPrimaryGoal,
				FieldID:   FieldPrimaryGoal,
				Prompt:    "What is the main thing you want this budget to help you achieve?",
				Component: models.ComponentTextarea,
			},
		})
	}

	if !hasValue(in.UserProfile, FieldFinancialPhilosophy) && !hasValue(in.FoundationalContext, FieldFinancialPhilosophy) {
		out = append(out, candidate{
			group: groupContext,
			question: models.Question{
				ID:        "q_" + FieldFinancialPhilosophy,
				FieldID:   FieldFinancialPhilosophy,
				Prompt:    "Which approach to money describes you best?",
				Component: models.ComponentDropdown,
				Options: []models.QuestionOption{
					{Label: "Financial independence (FIRE)", Value: "fire"},
					{Label: "Steady saver", Value: "saver"},
					{Label: "Debt free first", Value: "debt_free"},
					{Label: "Enjoy today", Value: "lifestyle"},
				},
			},
		})
	}
	return out
}

func analysis(model models.UnifiedModel, asked, total int) string {
	summary := model.Summary
	var builder strings.Builder
	fmt.Fprintf(&builder, "Monthly income %s, expenses %s, surplus %s.",
		formatAmount(summary.TotalIncome), formatAmount(summary.TotalExpenses), formatAmount(summary.Surplus))

	switch {
	case total == 0:
		builder.WriteString(" The budget has everything needed for a summary.")
	case asked < total:
		fmt.Fprintf(&builder, " %d gap(s) found, asking about the %d most important.", total, asked)
	default:
		fmt.Fprintf(&builder, " %d gap(s) found.", total)
	}
	return builder.String()
}

func nextSteps(needsClarification bool) []string {
	if needsClarification {
		return []string{
			"Answer the questions above and submit them.",
			"Request clarification again to check for remaining gaps.",
		}
	}
	return []string{
		"Submit answers to finalize the budget.",
		"Request the summary and suggestions.",
	}
}

func expenseLabel(item models.Expense) string {
	if notes := strings.TrimSpace(item.Notes); notes != "" {
		return notes
	}
	return item.Category
}

func formatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func hasValue(values map[string]any, key string) bool {
	if values == nil {
		return false
	}
	value, ok := values[key]
	if !ok || value == nil {
		return false
	}
	if text, isText := value.(string); isText {
		return strings.TrimSpace(text) != ""
	}
	return true
}
