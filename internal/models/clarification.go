package models

type QuestionComponent string

const (
	ComponentNumberInput QuestionComponent = "number_input"
	ComponentDropdown    QuestionComponent = "dropdown"
	ComponentToggle      QuestionComponent = "toggle"
	ComponentSlider      QuestionComponent = "slider"
	ComponentTextarea    QuestionComponent = "textarea"
)

type QuestionConstraints struct {
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
	Step    *float64 `json:"step,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Default any      `json:"default,omitempty"`
}

type QuestionOption struct {
	Label string `json:"label" validate:"required"`
	Value string `json:"value" validate:"required"`
}

type Question struct {
	ID          string               `json:"id" validate:"required"`
	FieldID     string               `json:"field_id" validate:"required"`
	Prompt      string               `json:"prompt" validate:"required"`
	Description string               `json:"description,omitempty"`
	Component   QuestionComponent    `json:"component" validate:"required,oneof=number_input dropdown toggle slider textarea"`
	Constraints *QuestionConstraints `json:"constraints,omitempty"`
	Options     []QuestionOption     `json:"options,omitempty" validate:"required_if=Component dropdown,dive"`
}

type QuestionGroup struct {
	ID          string   `json:"id" validate:"required"`
	Title       string   `json:"title" validate:"required"`
	QuestionIDs []string `json:"question_ids"`
}

// ProviderMetadata describes which path produced a generated payload.
type ProviderMetadata struct {
	Provider          string `json:"provider"`
	Model             string `json:"model,omitempty"`
	UsedDeterministic bool   `json:"used_deterministic"`
	FallbackReason    string `json:"fallback_reason,omitempty"`
}

type ClarificationResult struct {
	Questions          []Question       `json:"questions"`
	NeedsClarification bool             `json:"needs_clarification"`
	Analysis           string           `json:"analysis,omitempty"`
	QuestionGroups     []QuestionGroup  `json:"question_groups,omitempty"`
	NextSteps          []string         `json:"next_steps,omitempty"`
	Metadata           ProviderMetadata `json:"provider_metadata"`
}

type Suggestion struct {
	ID                    string   `json:"id" validate:"required"`
	Title                 string   `json:"title" validate:"required"`
	Description           string   `json:"description" validate:"required"`
	ExpectedMonthlyImpact float64  `json:"expected_monthly_impact" validate:"gte=0"`
	Category              string   `json:"category,omitempty"`
	RelatedIDs            []string `json:"related_ids,omitempty"`
}

type SuggestionResult struct {
	Suggestions       []Suggestion     `json:"suggestions"`
	UsedDeterministic bool             `json:"used_deterministic"`
	Metadata          ProviderMetadata `json:"provider_metadata"`
}
