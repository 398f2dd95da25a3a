package suggest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"example.com/budget-pipeline/backend/internal/models"
)

const (
	DefaultCategoryShareThreshold = 0.30
	DefaultInterestRateThreshold  = 15.0

	defaultCategoryChange = 0.10
)

// Thresholds tune the deterministic heuristics.
type Thresholds struct {
	CategoryShare float64
	InterestRate  float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.CategoryShare <= 0 {
		t.CategoryShare = DefaultCategoryShareThreshold
	}
	if t.InterestRate <= 0 {
		t.InterestRate = DefaultInterestRateThreshold
	}
	return t
}

// Deterministic строит рекомендации по эвристикам. Для корректной модели не возвращает ошибок.
func Deterministic(model models.UnifiedModel, thresholds Thresholds) []models.Suggestion {
	thresholds = thresholds.withDefaults()

	suggestions := make([]models.Suggestion, 0)
	suggestions = append(suggestions, shortfall(model)...)
	suggestions = append(suggestions, heavyCategories(model, thresholds.CategoryShare)...)
	suggestions = append(suggestions, expensiveDebts(model, thresholds.InterestRate)...)
	suggestions = append(suggestions, surplusAllocation(model)...)

	Rank(suggestions)
	return suggestions
}

// Rank упорядочивает рекомендации по убыванию эффекта, затем по идентификатору.
func Rank(suggestions []models.Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].ExpectedMonthlyImpact != suggestions[j].ExpectedMonthlyImpact {
			return suggestions[i].ExpectedMonthlyImpact > suggestions[j].ExpectedMonthlyImpact
		}
		return suggestions[i].ID < suggestions[j].ID
	})
}

func shortfall(model models.UnifiedModel) []models.Suggestion {
	if model.Summary.Surplus >= 0 {
		return nil
	}
	gap := money(decimal.NewFromFloat(model.Summary.Surplus).Neg())
	return []models.Suggestion{{
		ID:                    "close-shortfall",
		Title:                 "Close the monthly shortfall",
		Description:           fmt.Sprintf("Expenses exceed income by %.2f per month. Trim flexible spending or add income before anything else.", gap),
		ExpectedMonthlyImpact: gap,
		Category:              "shortfall",
	}}
}

func heavyCategories(model models.UnifiedModel, threshold float64) []models.Suggestion {
	shares := model.CategoryShares()
	categories := make([]string, 0, len(shares))
	for category, share := range shares {
		if share > threshold {
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)

	change := defaultCategoryChange
	if value := model.Preferences.MaxDesiredChangePerCategory; value != nil && *value > 0 {
		change = *value
	}
	protect := model.Preferences.ProtectEssentials != nil && *model.Preferences.ProtectEssentials

	out := make([]models.Suggestion, 0, len(categories))
	for _, category := range categories {
		total := decimal.Zero
		related := make([]string, 0)
		allEssential := true
		for _, item := range model.Expenses {
			if item.Category != category {
				continue
			}
			total = total.Add(decimal.NewFromFloat(item.MonthlyAmount))
			related = append(related, item.ID)
			if item.Essential == nil || !*item.Essential {
				allEssential = false
			}
		}
		if protect && allEssential {
			continue
		}

		impact := money(total.Mul(decimal.NewFromFloat(change)))
		out = append(out, models.Suggestion{
			ID:    "reduce-" + category,
			Title: fmt.Sprintf("Reduce %s spending", humanize(category)),
			Description: fmt.Sprintf("%s takes %.0f%% of your expenses. Cutting it by %.0f%% frees about %.2f per month.",
				humanize(category), shares[category]*100, change*100, impact),
			ExpectedMonthlyImpact: impact,
			Category:              category,
			RelatedIDs:            related,
		})
	}
	return out
}

func expensiveDebts(model models.UnifiedModel, threshold float64) []models.Suggestion {
	out := make([]models.Suggestion, 0)
	for _, debt := range model.Debts {
		if debt.InterestRate <= threshold {
			continue
		}
		interest := money(decimal.NewFromFloat(debt.Balance).
			Mul(decimal.NewFromFloat(debt.InterestRate)).
			Div(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(12)))
		name := debtName(debt)
		out = append(out, models.Suggestion{
			ID:    "pay-down-" + debt.ID,
			Title: fmt.Sprintf("Pay down %s first", name),
			Description: fmt.Sprintf("%s charges %.1f%% a year, about %.2f in interest every month. Prioritize it or refinance.",
				name, debt.InterestRate, interest),
			ExpectedMonthlyImpact: interest,
			Category:              "debt",
			RelatedIDs:            []string{debt.ID},
		})
	}
	return out
}

func surplusAllocation(model models.UnifiedModel) []models.Suggestion {
	if model.Summary.Surplus <= 0 {
		return nil
	}
	surplus := decimal.NewFromFloat(model.Summary.Surplus)

	target := highestRateDebt(model.Debts)
	focus := model.Preferences.OptimizationFocus
	if focus == "" {
		focus = models.FocusBalanced
	}
	if target == nil && focus == models.FocusDebt {
		focus = models.FocusSavings
	}

	switch focus {
	case models.FocusDebt:
		impact := money(surplus)
		return []models.Suggestion{{
			ID:                    "allocate-surplus",
			Title:                 fmt.Sprintf("Send your surplus to %s", debtName(*target)),
			Description:           fmt.Sprintf("Put the %.2f monthly surplus toward the highest-rate debt.", impact),
			ExpectedMonthlyImpact: impact,
			Category:              "debt",
			RelatedIDs:            []string{target.ID},
		}}
	case models.FocusSavings:
		impact := money(surplus)
		return []models.Suggestion{{
			ID:                    "allocate-surplus",
			Title:                 "Automate your savings",
			Description:           fmt.Sprintf("Move the %.2f monthly surplus to savings on payday.", impact),
			ExpectedMonthlyImpact: impact,
			Category:              "savings",
		}}
	default:
		half := money(surplus.Div(decimal.NewFromInt(2)))
		description := fmt.Sprintf("Save %.2f each month and keep the rest as a buffer.", half)
		related := []string(nil)
		if target != nil {
			description = fmt.Sprintf("Split the surplus: %.2f to savings and the rest to %s.", half, debtName(*target))
			related = []string{target.ID}
		}
		return []models.Suggestion{{
			ID:                    "allocate-surplus",
			Title:                 "Split your surplus",
			Description:           description,
			ExpectedMonthlyImpact: half,
			Category:              "savings",
			RelatedIDs:            related,
		}}
	}
}

func highestRateDebt(debts []models.Debt) *models.Debt {
	var best *models.Debt
	for i := range debts {
		if debts[i].Balance <= 0 && debts[i].MinPayment <= 0 {
			continue
		}
		if best == nil || debts[i].InterestRate > best.InterestRate {
			best = &debts[i]
		}
	}
	return best
}

func debtName(debt models.Debt) string {
	if name := strings.TrimSpace(debt.Name); name != "" {
		return name
	}
	return debt.ID
}

func money(value decimal.Decimal) float64 {
	return value.Round(2).InexactFloat64()
}

func humanize(category string) string {
	text := strings.ReplaceAll(category, "_", " ")
	if text == "" {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}
