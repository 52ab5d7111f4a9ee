// Package translate fills in missing Directus translation rows. For every
// record in the content tables it takes the first existing translation as
// the source text, generates the missing target languages with Claude and
// inserts the result into the matching <table>_translations collection.
package translate

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/directus"
	"github.com/klimadashboard/klimasync/pkg/anthropic"
)

// MainTables lists the content tables that carry translations.
var MainTables = []string{
	"charts", "news", "glossary",
	"block_panel", "block_richtext", "block_teaser", "block_items",
	"block_toggle", "block_donation",
	"pages", "sites",
	"policies", "policies_attributes", "policies_updates",
}

// ConfirmFunc decides whether a generated translation is inserted. It
// receives the table, record ID, target language and the translated
// fields for preview.
type ConfirmFunc func(table string, recordID any, lang string, fields directus.Item) bool

// Options configures a Translator.
type Options struct {
	// Tables restricts the run to a subset of MainTables. Empty means all.
	Tables []string
	// Confirm is invoked before every insert. Nil auto-approves, which is
	// what the --yes flag maps to.
	Confirm ConfirmFunc
	// Temperature for the model. Zero value keeps the default of 0.3.
	Temperature float64
}

// Translator generates and inserts missing translations.
type Translator struct {
	directus    directus.Client
	llm         anthropic.Client
	model       string
	maxTokens   int64
	tables      []string
	confirm     ConfirmFunc
	temperature float64
	log         *zap.Logger
}

// NewTranslator creates a Translator using the given model.
func NewTranslator(dc directus.Client, llm anthropic.Client, model string, maxTokens int64, opts Options) *Translator {
	tables := opts.Tables
	if len(tables) == 0 {
		tables = MainTables
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	return &Translator{
		directus:    dc,
		llm:         llm,
		model:       model,
		maxTokens:   maxTokens,
		tables:      tables,
		confirm:     opts.Confirm,
		temperature: temperature,
		log:         zap.L().Named("translate"),
	}
}

// Run processes all configured tables and returns the number of inserted
// translation rows.
func (t *Translator) Run(ctx context.Context) (int, error) {
	langs, err := t.targetLanguages(ctx)
	if err != nil {
		return 0, err
	}
	if len(langs) == 0 {
		t.log.Warn("no target languages configured")
		return 0, nil
	}

	inserted := 0
	for _, table := range t.tables {
		n, err := t.processTable(ctx, table, langs)
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// targetLanguages reads the configured language codes from Directus.
func (t *Translator) targetLanguages(ctx context.Context) ([]string, error) {
	items, err := t.directus.ListItems(ctx, "languages", url.Values{})
	if err != nil {
		return nil, eris.Wrap(err, "translate: fetch languages")
	}
	var codes []string
	for _, item := range items {
		if code, ok := item["code"].(string); ok && code != "" {
			codes = append(codes, strings.ToLower(code))
		}
	}
	return codes, nil
}

func (t *Translator) processTable(ctx context.Context, table string, langs []string) (int, error) {
	params := url.Values{}
	params.Set("fields", "*,translations.*")
	params.Set("limit", "-1")

	records, err := t.directus.ListItems(ctx, table, params)
	if err != nil {
		return 0, eris.Wrapf(err, "translate: fetch %s", table)
	}
	t.log.Info("processing table", zap.String("table", table), zap.Int("records", len(records)))

	inserted := 0
	for _, record := range records {
		translations := itemList(record["translations"])
		if len(translations) == 0 {
			t.log.Debug("record has no translations", zap.String("table", table), zap.Any("id", record["id"]))
			continue
		}
		base := translations[0]

		for _, lang := range langs {
			if err := ctx.Err(); err != nil {
				return inserted, err
			}
			if hasTranslation(translations, lang) {
				continue
			}

			source := translatableFields(base, table)
			if len(source) == 0 {
				continue
			}

			translated := directus.Item{}
			for key, value := range source {
				translated[key] = t.translateValue(ctx, value, lang)
			}

			if t.confirm != nil && !t.confirm(table, record["id"], lang, translated) {
				t.log.Info("translation skipped",
					zap.String("table", table), zap.Any("id", record["id"]), zap.String("lang", lang))
				continue
			}

			row := directus.Item{
				table + "_id":    record["id"],
				"languages_code": lang,
			}
			for key, value := range translated {
				row[key] = value
			}
			if _, err := t.directus.CreateItem(ctx, table+"_translations", row); err != nil {
				return inserted, eris.Wrapf(err, "translate: insert %s translation for record %v", table, record["id"])
			}
			inserted++
			t.log.Info("translation inserted",
				zap.String("table", table), zap.Any("id", record["id"]), zap.String("lang", lang))
		}
	}
	return inserted, nil
}

// translateValue recursively translates strings while preserving the JSON
// structure. Values under "key" and "link" keys are carried over verbatim.
func (t *Translator) translateValue(ctx context.Context, value any, lang string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			if key == "key" || key == "link" {
				out[key] = inner
				continue
			}
			out[key] = t.translateValue(ctx, inner, lang)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = t.translateValue(ctx, item, lang)
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return v
		}
		return t.translateText(ctx, v, lang)
	default:
		return value
	}
}

// translateText asks the model for a single string. On failure the source
// text is kept so a flaky request never blocks the whole run.
func (t *Translator) translateText(ctx context.Context, text, lang string) string {
	system := fmt.Sprintf(
		"You are a translation assistant. Your task is to translate text from any language into %s while preserving formatting, placeholders, and HTML tags. "+
			"Do NOT translate values where the key is 'key' or 'link'. Ensure correct spelling and grammar.",
		strings.ToUpper(lang),
	)

	resp, err := t.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       t.model,
		MaxTokens:   t.maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &t.temperature,
	})
	if err != nil {
		t.log.Warn("translation request failed", zap.String("lang", lang), zap.Error(err))
		return text
	}
	return strings.TrimSpace(resp.Text())
}

// translatableFields extracts the fields of a translation row worth
// translating. Bookkeeping columns and empty strings are dropped.
func translatableFields(row directus.Item, table string) directus.Item {
	exclude := map[string]bool{
		"id":             true,
		"languages_code": true,
		table + "_id":    true,
		"created_at":     true,
		"updated_at":     true,
	}
	out := directus.Item{}
	for key, value := range row {
		if exclude[key] {
			continue
		}
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				out[key] = v
			}
		case []any:
			out[key] = v
		}
	}
	return out
}

// hasTranslation reports whether a row for the language already exists.
func hasTranslation(translations []directus.Item, lang string) bool {
	for _, tr := range translations {
		if code, ok := tr["languages_code"].(string); ok && strings.EqualFold(code, lang) {
			return true
		}
	}
	return false
}

// itemList converts the decoded translations array into items.
func itemList(value any) []directus.Item {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]directus.Item, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, directus.Item(m))
		}
	}
	return out
}
