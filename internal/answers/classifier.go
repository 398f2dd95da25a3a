package answers

import (
	"strings"

	"example.com/budget-pipeline/backend/internal/clarify"
)

type Bucket string

const (
	BucketModel        Bucket = "model"
	BucketProfile      Bucket = "profile"
	BucketExtraContext Bucket = "extra_context"
)

var preferenceFields = map[string]struct{}{
	clarify.FieldOptimizationFocus:    {},
	clarify.FieldProtectEssentials:    {},
	clarify.FieldMaxChangePerCategory: {},
}

var profileFields = map[string]struct{}{
	clarify.FieldFinancialPhilosophy: {},
	clarify.FieldPrimaryGoal:         {},
	"risk_tolerance":                 {},
	"time_horizon":                   {},
	"household_size":                 {},
	"dependents":                     {},
	"employment_status":              {},
	"life_stage":                     {},
	"savings_goal":                   {},
	"emergency_fund_months":          {},
}

var profilePrefixes = []string{"goal_", "preference_", "lifestyle_", "family_", "career_"}

// Rule maps a field id to a bucket when Match returns true.
type Rule struct {
	Name   string
	Match  func(fieldID string) bool
	Bucket Bucket
}

// Rules is evaluated in order, the first match wins. Unmatched fields land in
// the extra context bucket.
var Rules = []Rule{
	{Name: "essential_flag", Match: isEssentialField, Bucket: BucketModel},
	{Name: "preference", Match: inSet(preferenceFields), Bucket: BucketModel},
	{Name: "debt_attribute", Match: isDebtField, Bucket: BucketModel},
	{Name: "profile", Match: isProfileField, Bucket: BucketProfile},
}

// Classify возвращает корзину для идентификатора поля.
func Classify(fieldID string) Bucket {
	for _, rule := range Rules {
		if rule.Match(fieldID) {
			return rule.Bucket
		}
	}
	return BucketExtraContext
}

// Partition раскладывает ответы по корзинам; каждый ключ попадает ровно в одну.
type Partition struct {
	Model        map[string]any `json:"model"`
	Profile      map[string]any `json:"profile"`
	ExtraContext map[string]any `json:"extra_context"`
}

// Split классифицирует все ответы.
func Split(answers map[string]any) Partition {
	out := Partition{
		Model:        map[string]any{},
		Profile:      map[string]any{},
		ExtraContext: map[string]any{},
	}
	for key, value := range answers {
		switch Classify(key) {
		case BucketModel:
			out.Model[key] = value
		case BucketProfile:
			out.Profile[key] = value
		default:
			out.ExtraContext[key] = value
		}
	}
	return out
}

func isEssentialField(fieldID string) bool {
	return strings.HasPrefix(fieldID, clarify.EssentialPrefix) && len(fieldID) > len(clarify.EssentialPrefix)
}

func isDebtField(fieldID string) bool {
	_, _, ok := ParseDebtField(fieldID)
	return ok
}

func isProfileField(fieldID string) bool {
	if _, ok := profileFields[fieldID]; ok {
		return true
	}
	for _, prefix := range profilePrefixes {
		if strings.HasPrefix(fieldID, prefix) {
			return true
		}
	}
	return false
}

func inSet(set map[string]struct{}) func(string) bool {
	return func(fieldID string) bool {
		_, ok := set[fieldID]
		return ok
	}
}

// debtAttributes is ordered longest first so that "interest_rate" is not read as "rate".
var debtAttributes = []struct {
	suffix    string
	attribute string
}{
	{"interest_rate", attrInterestRate},
	{"interestRate", attrInterestRate},
	{"min_payment", attrMinPayment},
	{"minPayment", attrMinPayment},
	{"approximate", attrApproximate},
	{"priority", attrPriority},
	{"balance", attrBalance},
	{"name", attrName},
}

const (
	attrBalance      = "balance"
	attrInterestRate = "interest_rate"
	attrMinPayment   = "min_payment"
	attrPriority     = "priority"
	attrName         = "name"
	attrApproximate  = "approximate"
)

// ParseDebtField разбирает "debt_<id>_<attribute>". Идентификатор может содержать подчеркивания.
func ParseDebtField(fieldID string) (id, attribute string, ok bool) {
	rest, found := strings.CutPrefix(fieldID, clarify.DebtPrefix)
	if !found {
		return "", "", false
	}
	for _, candidate := range debtAttributes {
		if debtID, matched := strings.CutSuffix(rest, "_"+candidate.suffix); matched && debtID != "" {
			return debtID, candidate.attribute, true
		}
	}
	return "", "", false
}
