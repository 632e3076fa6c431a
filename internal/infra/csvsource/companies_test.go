package csvsource_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/article-rag/internal/core/ingestion"
	"github.com/jinford/article-rag/internal/infra/csvsource"
)

const companiesCSV = "\ufeffCompany Name,Drawdown Category,Website,Number of employees,Number of active jobs,Description\n" +
	"Acme Solar,Electricity,https://acme.example.com,51-200,12,\"Builds rooftop solar, at scale.\"\n" +
	"Green Steel Co,Industry,greensteel.example.com,,,\n" +
	"Nameless,,,,,\n"

func TestReadCompanies(t *testing.T) {
	companies, err := csvsource.ReadCompanies(strings.NewReader(companiesCSV), csvsource.Options{})

	require.NoError(t, err)
	require.Len(t, companies, 3)
	assert.Equal(t, csvsource.Company{
		Name:        "Acme Solar",
		Category:    "Electricity",
		Website:     "https://acme.example.com",
		Employees:   "51-200",
		ActiveJobs:  "12",
		Description: "Builds rooftop solar, at scale.",
	}, companies[0])
	assert.Equal(t, "greensteel.example.com", companies[1].Website)
}

func TestReadCompanies_Range(t *testing.T) {
	tests := []struct {
		name  string
		opts  csvsource.Options
		names []string
	}{
		{"全行", csvsource.Options{}, []string{"Acme Solar", "Green Steel Co", "Nameless"}},
		{"開始行", csvsource.Options{StartRow: 1}, []string{"Green Steel Co", "Nameless"}},
		{"最大行数", csvsource.Options{MaxRows: 2}, []string{"Acme Solar", "Green Steel Co"}},
		{"開始行と最大行数", csvsource.Options{StartRow: 1, MaxRows: 1}, []string{"Green Steel Co"}},
		{"範囲外", csvsource.Options{StartRow: 10}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			companies, err := csvsource.ReadCompanies(strings.NewReader(companiesCSV), tt.opts)
			require.NoError(t, err)

			var names []string
			for _, c := range companies {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestReadCompanies_Errors(t *testing.T) {
	_, err := csvsource.ReadCompanies(strings.NewReader("Name,Website\nAcme,x\n"), csvsource.Options{})
	assert.ErrorIs(t, err, csvsource.ErrMissingColumn)

	companies, err := csvsource.ReadCompanies(strings.NewReader(""), csvsource.Options{})
	require.NoError(t, err)
	assert.Empty(t, companies)

	_, err = csvsource.ReadFile(filepath.Join(t.TempDir(), "missing.csv"), csvsource.Options{})
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(companiesCSV), 0o600))

	companies, err := csvsource.ReadFile(path, csvsource.Options{MaxRows: 1})

	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "Acme Solar", companies[0].Name)
}

func TestCompany_SourceURL(t *testing.T) {
	tests := []struct {
		name    string
		company csvsource.Company
		want    string
	}{
		{"Webサイトをそのまま使う", csvsource.Company{Name: "Acme", Website: "https://acme.example.com"}, "https://acme.example.com"},
		{"スキームを補う", csvsource.Company{Name: "Acme", Website: "acme.example.com"}, "https://acme.example.com"},
		{"Webサイトが無ければ名前から作る", csvsource.Company{Name: "Green Steel & Co."}, "company://green-steel-co"},
		{"名前も無い", csvsource.Company{}, "company://unknown-company"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.company.SourceURL())
		})
	}
}

func TestCompany_ToDocument(t *testing.T) {
	importedAt := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	company := csvsource.Company{
		Name:        "Acme Solar",
		Category:    "Electricity",
		Website:     "https://acme.example.com",
		Employees:   "51-200",
		Description: "Builds rooftop solar.",
	}

	doc := company.ToDocument(importedAt)

	assert.Equal(t, "https://acme.example.com", doc.SourceURL)
	assert.Equal(t, "Acme Solar", doc.Title)
	assert.Equal(t, "Company: Acme Solar\n"+
		"Drawdown Category: Electricity\n"+
		"Number of Employees: 51-200\n"+
		"Website: https://acme.example.com\n"+
		"Description: Builds rooftop solar.\n", doc.Text)
	assert.Equal(t, "company", doc.Metadata.String(ingestion.MetaType))
	assert.Equal(t, "csv_import", doc.Metadata.String(ingestion.MetaSource))
	assert.Equal(t, "Electricity", doc.Metadata.String(ingestion.MetaCategory))
	assert.Equal(t, "51-200", doc.Metadata.String(csvsource.MetaNumEmployees))
	assert.Equal(t, "2025-05-06T07:08:09Z", doc.Metadata.String(ingestion.MetaProcessedAt))
	require.NoError(t, doc.Metadata.Validate())

	docs := csvsource.ToDocuments([]csvsource.Company{company, {Name: "Other"}}, importedAt)
	require.Len(t, docs, 2)
	assert.Equal(t, "company://other", docs[1].SourceURL)
	assert.Equal(t, "Company: Other\n", docs[1].Text)
}
