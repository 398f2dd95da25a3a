package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"example.com/budget-pipeline/backend/internal/auth"
	"example.com/budget-pipeline/backend/internal/clarify"
	"example.com/budget-pipeline/backend/internal/config"
	"example.com/budget-pipeline/backend/internal/ingest"
	"example.com/budget-pipeline/backend/internal/models"
	"example.com/budget-pipeline/backend/internal/normalize"
	"example.com/budget-pipeline/backend/internal/suggest"
)

type Analysis struct {
	File           string                     `json:"file"`
	DetectedFormat string                     `json:"detected_format"`
	Model          models.UnifiedModel        `json:"model"`
	CategoryShares map[string]float64         `json:"category_shares"`
	Clarification  models.ClarificationResult `json:"clarification"`
	Suggestions    []models.Suggestion        `json:"suggestions"`
}

type TokenOutput struct {
	Subject     string    `json:"subject"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "budgetctl",
		Short:        "Operator tools for the budget session pipeline",
		SilenceUsage: true,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Normalize an export offline and print questions and suggestions",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().String("query", "", "User question passed to the clarification rules")
	analyzeCmd.Flags().Int("max-questions", clarify.DefaultMaxQuestions, "Maximum number of clarification questions")
	analyzeCmd.Flags().Float64("share-threshold", suggest.DefaultCategoryShareThreshold, "Category share that triggers a reduction suggestion")
	analyzeCmd.Flags().Float64("rate-threshold", suggest.DefaultInterestRateThreshold, "Interest rate percentage that triggers a pay-down suggestion")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token signed with AUTH_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
	tokenCmd.Flags().String("subject", "", "Token subject (client or operator id)")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(analyzeCmd, tokenCmd)
	return rootCmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	query, _ := cmd.Flags().GetString("query")
	maxQuestions, _ := cmd.Flags().GetInt("max-questions")
	shareThreshold, _ := cmd.Flags().GetFloat64("share-threshold")
	rateThreshold, _ := cmd.Flags().GetFloat64("rate-threshold")

	if maxQuestions <= 0 {
		return fmt.Errorf("--max-questions must be greater than 0")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	analysis, err := analyze(filepath.Base(path), content, query, maxQuestions, suggest.Thresholds{
		CategoryShare: shareThreshold,
		InterestRate:  rateThreshold,
	})
	if err != nil {
		return err
	}

	return writeJSON(cmd.OutOrStdout(), analysis)
}

// analyze проходит draft -> модель -> вопросы -> рекомендации без провайдера и хранилища.
func analyze(filename string, content []byte, query string, maxQuestions int, thresholds suggest.Thresholds) (Analysis, error) {
	draft, err := ingest.Parse(filename, content)
	if err != nil {
		return Analysis{}, err
	}

	model, err := normalize.New(nil).Normalize(draft)
	if err != nil {
		return Analysis{}, err
	}

	clarification := clarify.Deterministic(clarify.Input{Model: model, UserQuery: query}, maxQuestions)

	return Analysis{
		File:           filename,
		DetectedFormat: draft.DetectedFormat,
		Model:          model,
		CategoryShares: model.CategoryShares(),
		Clarification:  clarification,
		Suggestions:    suggest.Deterministic(model, thresholds),
	}, nil
}

func runToken(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Auth.Enabled() {
		return fmt.Errorf("AUTH_JWT_SECRET is not set; the API runs without tokens")
	}

	manager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	token, err := manager.NewAccessToken(subject)
	if err != nil {
		return err
	}

	return writeJSON(cmd.OutOrStdout(), TokenOutput{
		Subject:     subject,
		AccessToken: token.Value,
		ExpiresAt:   token.ExpiresAt.UTC(),
	})
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
