package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"example.com/budget-pipeline/backend/internal/models"
)

const (
	FormatCSV           = "csv"
	FormatJSON          = "json"
	FormatBudgetBuilder = "budget_builder"
)

var (
	labelColumns    = []string{"label", "description", "name", "item", "title", "payee"}
	amountColumns   = []string{"amount", "monthly_amount", "value", "sum", "total"}
	kindColumns     = []string{"kind", "type", "direction"}
	categoryColumns = []string{"category", "group"}
	notesColumns    = []string{"notes", "note", "memo", "comment"}
)

// Parse превращает содержимое файла в черновик бюджета.
func Parse(filename string, content []byte) (models.Draft, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return models.Draft{}, &models.FormatError{Reason: "file is empty"}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".json" || trimmed[0] == '{' || trimmed[0] == '[' {
		return parseJSON(trimmed)
	}

	return parseCSV(trimmed)
}

type jsonEnvelope struct {
	Lines    []models.DraftLine `json:"lines"`
	Income   json.RawMessage    `json:"income"`
	Expenses json.RawMessage    `json:"expenses"`
}

func parseJSON(content []byte) (models.Draft, error) {
	if content[0] == '[' {
		var lines []models.DraftLine
		if err := json.Unmarshal(content, &lines); err != nil {
			return models.Draft{}, &models.FormatError{Reason: "invalid json line array: " + err.Error()}
		}
		return jsonDraft(lines), nil
	}

	var envelope jsonEnvelope
	if err := json.Unmarshal(content, &envelope); err != nil {
		return models.Draft{}, &models.FormatError{Reason: "invalid json document: " + err.Error()}
	}

	if len(envelope.Lines) > 0 {
		return jsonDraft(envelope.Lines), nil
	}

	if len(envelope.Income) > 0 || len(envelope.Expenses) > 0 {
		var model models.UnifiedModel
		if err := json.Unmarshal(content, &model); err != nil {
			return models.Draft{}, &models.FormatError{Reason: "invalid budget builder document: " + err.Error()}
		}
		return models.Draft{
			DetectedFormat: FormatBudgetBuilder,
			FormatHints: map[string]any{
				"income_count":  len(model.Income),
				"expense_count": len(model.Expenses),
				"debt_count":    len(model.Debts),
			},
			Structured: &model,
		}, nil
	}

	return models.Draft{}, &models.FormatError{Reason: "json document has no budget lines"}
}

func jsonDraft(lines []models.DraftLine) models.Draft {
	return models.Draft{
		Lines:          lines,
		DetectedFormat: FormatJSON,
		FormatHints:    map[string]any{"line_count": len(lines)},
	}
}

func parseCSV(content []byte) (models.Draft, error) {
	delimiter := detectDelimiter(content)

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records := make([][]string, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Draft{}, &models.FormatError{Reason: "invalid csv: " + err.Error()}
		}
		if isBlank(record) {
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return models.Draft{}, &models.FormatError{Reason: "csv has no rows"}
	}

	columns, hasHeader := detectColumns(records[0])
	if hasHeader {
		records = records[1:]
	}
	if columns.label < 0 || columns.amount < 0 {
		return models.Draft{}, &models.FormatError{Reason: "csv needs label and amount columns"}
	}

	lines := make([]models.DraftLine, 0, len(records))
	skipped := 0
	for _, record := range records {
		label := cell(record, columns.label)
		amount := cell(record, columns.amount)
		if label == "" && amount == "" {
			skipped++
			continue
		}

		lines = append(lines, models.DraftLine{
			Label:    label,
			Amount:   models.RawAmount(amount),
			Kind:     strings.ToLower(cell(record, columns.kind)),
			Category: cell(record, columns.category),
			Notes:    cell(record, columns.notes),
		})
	}

	return models.Draft{
		Lines:          lines,
		DetectedFormat: FormatCSV,
		FormatHints: map[string]any{
			"delimiter":    string(delimiter),
			"has_header":   hasHeader,
			"row_count":    len(records),
			"skipped_rows": skipped,
		},
	}, nil
}

type columnIndex struct {
	label    int
	amount   int
	kind     int
	category int
	notes    int
}

func detectColumns(header []string) (columnIndex, bool) {
	columns := columnIndex{
		label:    findColumn(header, labelColumns),
		amount:   findColumn(header, amountColumns),
		kind:     findColumn(header, kindColumns),
		category: findColumn(header, categoryColumns),
		notes:    findColumn(header, notesColumns),
	}

	if columns.label >= 0 || columns.amount >= 0 {
		if columns.label < 0 && columns.category >= 0 {
			columns.label = columns.category
		}
		return columns, true
	}

	// Headerless exports are read as label,amount[,kind].
	columns = columnIndex{label: 0, amount: -1, kind: -1, category: -1, notes: -1}
	if len(header) >= 2 {
		columns.amount = 1
	}
	if len(header) >= 3 {
		columns.kind = 2
	}
	return columns, false
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for idx, column := range header {
			if strings.EqualFold(strings.TrimSpace(column), name) {
				return idx
			}
		}
	}
	return -1
}

func detectDelimiter(content []byte) rune {
	firstLine := content
	if idx := bytes.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}

	best := ','
	bestCount := bytes.Count(firstLine, []byte{','})
	for _, candidate := range []rune{';', '\t', '|'} {
		if count := bytes.Count(firstLine, []byte(string(candidate))); count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
