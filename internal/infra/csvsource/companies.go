package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// 企業一覧CSVの列名
const (
	ColumnName        = "Company Name"
	ColumnCategory    = "Drawdown Category"
	ColumnWebsite     = "Website"
	ColumnEmployees   = "Number of employees"
	ColumnActiveJobs  = "Number of active jobs"
	ColumnDescription = "Description"
)

// 企業ドキュメント固有のメタデータキー
const (
	MetaNumEmployees = "num_employees"
	MetaNumJobs      = "num_jobs"
)

// ErrMissingColumn は必須列（Company Name）がヘッダに無い場合に返される
var ErrMissingColumn = errors.New("missing required column")

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Company はCSVの1行
type Company struct {
	Name        string
	Category    string
	Website     string
	Employees   string
	ActiveJobs  string
	Description string
}

// Options は読み込み範囲の指定
type Options struct {
	// StartRow はヘッダを除いた0始まりの開始行
	StartRow int
	// MaxRows は読み込む最大行数（0 は全行）
	MaxRows int
}

// ReadFile はCSVファイルを開いて ReadCompanies を呼ぶ
func ReadFile(path string, opts Options) ([]Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv %s: %w", path, err)
	}
	defer f.Close()
	return ReadCompanies(f, opts)
}

// ReadCompanies はヘッダ行付きのCSVを読み込む。列の順序は問わない
func ReadCompanies(r io.Reader, opts Options) ([]Company, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := index[ColumnName]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnName)
	}

	field := func(record []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var companies []Company
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", row+1, err)
		}
		if row < opts.StartRow {
			continue
		}
		if opts.MaxRows > 0 && len(companies) >= opts.MaxRows {
			break
		}
		companies = append(companies, Company{
			Name:        field(record, ColumnName),
			Category:    field(record, ColumnCategory),
			Website:     field(record, ColumnWebsite),
			Employees:   field(record, ColumnEmployees),
			ActiveJobs:  field(record, ColumnActiveJobs),
			Description: field(record, ColumnDescription),
		})
	}
	return companies, nil
}

// SourceURL は企業のソースURLを返す。Webサイトが無い場合は company://<slug> を使う
func (c Company) SourceURL() string {
	website := c.Website
	if website != "" {
		if !strings.Contains(website, "://") {
			website = "https://" + website
		}
		return website
	}
	name := c.Name
	if name == "" {
		name = "unknown company"
	}
	return "company://" + strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Text は埋め込み用に各列を結合した本文を返す。空の列は出力しない
func (c Company) Text() string {
	name := c.Name
	if name == "" {
		name = "Unknown Company"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", name)
	lines := []struct{ label, value string }{
		{"Drawdown Category", c.Category},
		{"Number of Employees", c.Employees},
		{"Active Jobs", c.ActiveJobs},
		{"Website", c.Website},
		{"Description", c.Description},
	}
	for _, l := range lines {
		if l.value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", l.label, l.value)
		}
	}
	return sb.String()
}

// ToDocument は企業行を取り込み用ドキュメントに変換する
func (c Company) ToDocument(importedAt time.Time) ingestion.DocumentInput {
	title := c.Name
	if title == "" {
		title = "Unknown Company"
	}
	metadata := ingestion.Metadata{
		ingestion.MetaType:        "company",
		ingestion.MetaSource:      "csv_import",
		ingestion.MetaCategory:    c.Category,
		MetaNumEmployees:          c.Employees,
		MetaNumJobs:               c.ActiveJobs,
		ingestion.MetaProcessedAt: importedAt.UTC().Format(time.RFC3339),
	}
	if c.Website != "" {
		metadata[ingestion.MetaWebsite] = c.Website
	}

	return ingestion.DocumentInput{
		SourceURL: c.SourceURL(),
		Title:     title,
		Text:      c.Text(),
		Metadata:  metadata,
	}
}

// ToDocuments は複数行をまとめて変換する
func ToDocuments(companies []Company, importedAt time.Time) []ingestion.DocumentInput {
	docs := make([]ingestion.DocumentInput, 0, len(companies))
	for _, c := range companies {
		docs = append(docs, c.ToDocument(importedAt))
	}
	return docs
}
