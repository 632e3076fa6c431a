package gmail

import (
	"encoding/base64"
	"html"
	"net/mail"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// SourceURL はメッセージIDから重複排除キーとなるURLを作る
func SourceURL(messageID string) string {
	return "gmail://" + messageID
}

// MessageToDocument は format=full で取得したメッセージを DocumentInput に変換する。
// 本文が取得できない（text/plain も snippet も空）場合は false を返す。
func MessageToDocument(msg *gmailv1.Message, processedAt time.Time) (ingestion.DocumentInput, bool) {
	if msg == nil {
		return ingestion.DocumentInput{}, false
	}

	body := strings.TrimSpace(plainTextBody(msg.Payload))
	if body == "" {
		body = strings.TrimSpace(html.UnescapeString(msg.Snippet))
	}
	if body == "" {
		return ingestion.DocumentInput{}, false
	}

	subject := header(msg.Payload, "Subject")
	from := header(msg.Payload, "From")
	to := header(msg.Payload, "To")
	rawDate := header(msg.Payload, "Date")

	title := subject
	if title == "" {
		title = "Email from " + from
	}

	published := messageTime(rawDate, msg.InternalDate)
	date := rawDate
	if published != nil {
		date = published.UTC().Format(time.RFC3339)
	}

	metadata := ingestion.Metadata{
		ingestion.MetaType:        "email",
		ingestion.MetaSource:      "gmail",
		ingestion.MetaEmailID:     msg.Id,
		ingestion.MetaThreadID:    msg.ThreadId,
		ingestion.MetaFromEmail:   from,
		ingestion.MetaToEmail:     to,
		ingestion.MetaDate:        date,
		ingestion.MetaProcessedAt: processedAt.UTC().Format(time.RFC3339),
	}
	if len(msg.LabelIds) > 0 {
		metadata[ingestion.MetaLabels] = append([]string(nil), msg.LabelIds...)
	}

	var authors []string
	if from != "" {
		authors = []string{from}
	}

	return ingestion.DocumentInput{
		SourceURL:   SourceURL(msg.Id),
		Title:       title,
		Text:        body,
		Authors:     authors,
		PublishedAt: published,
		Metadata:    metadata,
		// スレッド単位で検索を絞り込めるようにする
		ChunkMetadata: ingestion.Metadata{ingestion.MetaThreadID: msg.ThreadId},
	}, true
}

// plainTextBody はパート木を深さ優先で辿り、最初の text/plain 本文を返す
func plainTextBody(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		if text, err := decodeBody(part.Body.Data); err == nil {
			return text
		}
	}
	for _, child := range part.Parts {
		if text := plainTextBody(child); text != "" {
			return text
		}
	}
	return ""
}

// decodeBody は base64url（パディング有無どちらも）をデコードする
func decodeBody(data string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func header(part *gmailv1.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}

// messageTime は Date ヘッダを優先し、解釈できなければ internalDate（ミリ秒）を使う
func messageTime(rawDate string, internalDate int64) *time.Time {
	if rawDate != "" {
		if t, err := mail.ParseDate(rawDate); err == nil {
			return &t
		}
	}
	if internalDate > 0 {
		t := time.UnixMilli(internalDate).UTC()
		return &t
	}
	return nil
}
