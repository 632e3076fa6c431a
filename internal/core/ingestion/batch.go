package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// ItemOutcome はバッチ取り込みの1項目の失敗（またはスキップ）理由
type ItemOutcome struct {
	Position   int
	SourceURL  string
	DocumentID uuid.UUID
	Kind       ErrorKind
	Err        error
}

// BatchReport はバッチ取り込みの集計結果
type BatchReport struct {
	Succeeded []*IngestResult
	Skipped   []ItemOutcome // 本文なし
	Failed    []ItemOutcome
}

// Total は処理対象の件数を返す
func (r *BatchReport) Total() int {
	return len(r.Succeeded) + len(r.Skipped) + len(r.Failed)
}

// FailedChunks は成功したドキュメントのうち保存できなかったチャンク数の合計を返す
func (r *BatchReport) FailedChunks() int {
	n := 0
	for _, res := range r.Succeeded {
		n += len(res.Failures)
	}
	return n
}

// IngestBatch は複数ドキュメントを順に取り込む。
// 1件の失敗は他の項目の処理を中断しない。
func (p *Pipeline) IngestBatch(ctx context.Context, inputs []DocumentInput) *BatchReport {
	report := &BatchReport{}

	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, ItemOutcome{
				Position:  i,
				SourceURL: input.SourceURL,
				Kind:      KindStorage,
				Err:       err,
			})
			continue
		}

		result, err := p.Ingest(ctx, input)
		if err != nil {
			outcome := ItemOutcome{Position: i, SourceURL: input.SourceURL, Kind: KindOf(err), Err: err}
			if outcome.Kind == KindNoContent {
				p.logger.Info("本文が空のためスキップ", "position", i, "url", input.SourceURL)
				report.Skipped = append(report.Skipped, outcome)
				continue
			}
			p.logger.Warn("ドキュメントの取り込みに失敗",
				"position", i,
				"url", input.SourceURL,
				"kind", outcome.Kind,
				"error", err,
			)
			report.Failed = append(report.Failed, outcome)
			continue
		}

		// 正規ストアには保存できたがチャンクが1件も保存できなかった場合は失敗扱い
		if result.TotalChunks > 0 && len(result.ChunkIDs) == 0 {
			first := result.Failures[0]
			report.Failed = append(report.Failed, ItemOutcome{
				Position:   i,
				SourceURL:  input.SourceURL,
				DocumentID: result.DocumentID,
				Kind:       first.Kind,
				Err:        first.Err,
			})
			continue
		}

		report.Succeeded = append(report.Succeeded, result)
	}

	p.logger.Info("バッチ取り込み完了",
		"total", report.Total(),
		"succeeded", len(report.Succeeded),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"failedChunks", report.FailedChunks(),
	)

	return report
}
