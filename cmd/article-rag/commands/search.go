package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/article-rag/internal/core/search"
)

// searchFlags は search コマンドのフラグの値
type searchFlags struct {
	Query      string
	TopK       int
	Type       string
	Domain     string
	DocumentID string
}

// toParams はフラグから検索パラメータを組み立てる。TopK が 0 の場合は defaultTopK を使う
func (f searchFlags) toParams(defaultTopK int) (search.SearchParams, error) {
	params := search.SearchParams{Query: f.Query, TopK: f.TopK}
	if params.TopK <= 0 {
		params.TopK = defaultTopK
	}

	var filter search.SearchFilter
	hasFilter := false
	if f.Type != "" {
		filter.Type = &f.Type
		hasFilter = true
	}
	if f.Domain != "" {
		filter.Domain = &f.Domain
		hasFilter = true
	}
	if f.DocumentID != "" {
		id, err := uuid.Parse(f.DocumentID)
		if err != nil {
			return search.SearchParams{}, fmt.Errorf("--document の形式が不正です: %w", err)
		}
		filter.DocumentID = &id
		hasFilter = true
	}
	if hasFilter {
		params.Filter = &filter
	}
	return params, nil
}

// SearchAction はセマンティック検索を行うコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	params, err := searchFlags{
		Query:      cmd.String("query"),
		TopK:       cmd.Int("top-k"),
		Type:       cmd.String("type"),
		Domain:     cmd.String("domain"),
		DocumentID: cmd.String("document"),
	}.toParams(appCtx.Config.Search.TopK)
	if err != nil {
		return err
	}

	hits, err := appCtx.Container.SearchService.Search(ctx, params)
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	w := stdout(cmd)
	if cmd.Bool("group") {
		groups := search.GroupByDocument(hits)
		if cmd.String("format") == "json" {
			return writeJSON(w, groups)
		}
		printDocumentHits(w, groups)
		return nil
	}

	if cmd.String("format") == "json" {
		return writeJSON(w, hits)
	}
	printSearchHits(w, hits)
	return nil
}
