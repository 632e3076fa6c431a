package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jinford/article-rag/internal/core/ingestion"
	"github.com/jinford/article-rag/internal/core/search"
)

// parseTimeFlag は RFC3339 または YYYY-MM-DD 形式の日時を解釈する。空文字は nil
func parseTimeFlag(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("%q は RFC3339 または YYYY-MM-DD で指定してください", s)
	}
	return &t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate は表示用に rune 数で切り詰める
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

func printIngestResult(w io.Writer, r *ingestion.IngestResult) {
	status := "更新"
	if r.Created {
		status = "新規"
	}
	fmt.Fprintf(w, "✓ %s を取り込みました（%s）\n", r.SourceURL, status)
	fmt.Fprintf(w, "  Document ID:  %s\n", r.DocumentID)
	fmt.Fprintf(w, "  Chunks:       %d/%d\n", r.TotalChunks-len(r.Failures), r.TotalChunks)
	if r.PurgedChunks > 0 {
		fmt.Fprintf(w, "  Purged:       %d\n", r.PurgedChunks)
	}
	fmt.Fprintf(w, "  Duration:     %s\n", r.Duration.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  ✗ chunk %d: %s: %v\n", f.Index, f.Kind, f.Err)
	}
}

func printBatchReport(w io.Writer, report *ingestion.BatchReport) {
	fmt.Fprintf(w, "=== 取り込み結果 ===\n")
	fmt.Fprintf(w, "対象:     %d\n", report.Total())
	fmt.Fprintf(w, "成功:     %d\n", len(report.Succeeded))
	fmt.Fprintf(w, "スキップ: %d\n", len(report.Skipped))
	fmt.Fprintf(w, "失敗:     %d\n", len(report.Failed))
	if n := report.FailedChunks(); n > 0 {
		fmt.Fprintf(w, "保存できなかったチャンク: %d\n", n)
	}

	for _, s := range report.Skipped {
		fmt.Fprintf(w, "  - [%d] %s: 本文なし\n", s.Position, s.SourceURL)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "  ✗ [%d] %s: %s: %v\n", f.Position, f.SourceURL, f.Kind, f.Err)
	}
}

func printDocument(w io.Writer, doc *ingestion.Document, chunks []*ingestion.StoredChunk, showChunks bool) {
	fmt.Fprintf(w, "\n=== ドキュメント詳細 ===\n\n")
	fmt.Fprintf(w, "ID:           %s\n", doc.ID)
	fmt.Fprintf(w, "URL:          %s\n", doc.SourceURL)
	fmt.Fprintf(w, "Domain:       %s\n", doc.Domain)
	fmt.Fprintf(w, "Title:        %s\n", doc.Title)
	if len(doc.Authors) > 0 {
		fmt.Fprintf(w, "Authors:      %s\n", strings.Join(doc.Authors, ", "))
	}
	if doc.PublishedAt != nil {
		fmt.Fprintf(w, "Published At: %s\n", doc.PublishedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Created At:   %s\n", doc.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated At:   %s\n", doc.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Type:         %s\n", doc.Metadata.String(ingestion.MetaType))
	fmt.Fprintf(w, "Text:         %d 文字\n", len([]rune(doc.Text)))
	fmt.Fprintf(w, "Chunks:       %d\n", len(chunks))

	if !showChunks {
		return
	}
	for _, c := range chunks {
		fmt.Fprintf(w, "\n[%d] %s\n%s\n", c.ChunkIndex, c.ID, c.Text)
	}
}

func printDocumentTable(w io.Writer, docs []*ingestion.Document) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Domain", "Type", "Title", "Created At")
	for _, d := range docs {
		_ = table.Append([]string{
			d.ID.String(),
			d.Domain,
			d.Metadata.String(ingestion.MetaType),
			truncate(d.Title, 40),
			d.CreatedAt.Format(time.RFC3339),
		})
	}
	return table.Render()
}

func printSearchHits(w io.Writer, hits []*search.SearchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "一致するチャンクはありません")
		return
	}
	for i, h := range hits {
		fmt.Fprintf(w, "%d. [%.4f] %s\n", i+1, h.Score, displayTitle(h.Document))
		fmt.Fprintf(w, "   %s (chunk %d)\n", h.Document.SourceURL, h.ChunkIndex)
		fmt.Fprintf(w, "   %s\n", truncate(h.ChunkText, 160))
	}
}

func printDocumentHits(w io.Writer, groups []*search.DocumentHits) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "一致するドキュメントはありません")
		return
	}
	for i, g := range groups {
		fmt.Fprintf(w, "%d. %s\n", i+1, displayTitle(g.Document))
		fmt.Fprintf(w, "   %s\n", g.Document.SourceURL)
		fmt.Fprintf(w, "   一致チャンク: %d / 最高スコア: %.4f\n", len(g.Hits), g.BestScore)
	}
}

func displayTitle(doc *ingestion.Document) string {
	if doc.Title != "" {
		return doc.Title
	}
	return doc.SourceURL
}
