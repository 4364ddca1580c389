package storage

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/jomei/notionapi"

	"finnews-relay/internal/pipeline"
)

// notionRichTextLimit is the Notion API limit for one rich text block.
const notionRichTextLimit = 2000

// PageCreator is the part of notionapi.PageService the sink needs.
type PageCreator interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// NotionSink mirrors each result as one page of a Notion database.
//
// Expected database properties:
//
//	Title (title), URL (url), Published (rich text), Summary (rich text), Run (rich text)
type NotionSink struct {
	pages  PageCreator
	dbID   notionapi.DatabaseID
	logger *log.Logger
}

// NewNotionSink builds a sink from an integration token and database id.
func NewNotionSink(token, databaseID string, logger *log.Logger) (*NotionSink, error) {
	if token == "" {
		return nil, fmt.Errorf("NOTION_TOKEN is required")
	}
	if databaseID == "" {
		return nil, fmt.Errorf("NOTION_DATABASE_ID is required")
	}
	client := notionapi.NewClient(notionapi.Token(token))
	return newNotionSink(client.Page, databaseID, logger), nil
}

func newNotionSink(pages PageCreator, databaseID string, logger *log.Logger) *NotionSink {
	if logger == nil {
		logger = log.Default()
	}
	return &NotionSink{pages: pages, dbID: notionapi.DatabaseID(databaseID), logger: logger}
}

// Upload creates one page per result. Every result is attempted; the
// return value is false if any page failed.
func (n *NotionSink) Upload(ctx context.Context, results []pipeline.SummaryResult, runID string) bool {
	ok := true
	for _, r := range results {
		if _, err := n.pages.Create(ctx, n.pageRequest(r, runID)); err != nil {
			n.logger.Error("notion.create.error", "link", r.Link, "err", err)
			ok = false
		}
	}
	if ok {
		n.logger.Info("notion.create.ok", "run_id", runID, "n_results", len(results))
	}
	return ok
}

func (n *NotionSink) pageRequest(r pipeline.SummaryResult, runID string) *notionapi.PageCreateRequest {
	props := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(r.Title),
		},
		"Summary": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(r.Summary),
		},
		"Run": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(runID),
		},
	}
	if r.Link != "" {
		props["URL"] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  r.Link,
		}
	}
	if r.Published != nil {
		props["Published"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(*r.Published),
		}
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: n.dbID,
		},
		Properties: props,
	}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: truncateText(s, notionRichTextLimit)}}}
}

// truncateText cuts s to maxLen characters, ending in "..." when cut.
func truncateText(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}
