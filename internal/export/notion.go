package export

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/dvloznov/finance-graph/internal/logger"
	"github.com/jomei/notionapi"
)

// TransactionIDProperty is the Notion property pages are keyed by.
const TransactionIDProperty = "Transaction ID"

// NotionService defines the Notion operations the exporter needs.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// NotionClient implements NotionService with the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a NotionClient with the provided integration token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a new page in a Notion database.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// UpdatePage updates an existing Notion page.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase queries a Notion database.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// NotionExporter upserts one page per transaction.
type NotionExporter struct {
	svc        NotionService
	databaseID string
}

// NewNotionExporter writes into the given database.
func NewNotionExporter(svc NotionService, databaseID string) *NotionExporter {
	return &NotionExporter{svc: svc, databaseID: databaseID}
}

// Export implements Exporter. The page carrying tx.ID in TransactionIDProperty
// is updated, or created when none exists.
func (e *NotionExporter) Export(ctx context.Context, tx domain.Transaction) error {
	props := TransactionProperties(tx)

	resp, err := e.svc.QueryDatabase(ctx, e.databaseID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: TransactionIDProperty,
			RichText: &notionapi.TextFilterCondition{Equals: tx.ID},
		},
		PageSize: 1,
	})
	if err != nil {
		return fmt.Errorf("NotionExporter.Export %s: lookup: %w", tx.ID, err)
	}

	if len(resp.Results) > 0 {
		pageID := string(resp.Results[0].ID)
		if _, err := e.svc.UpdatePage(ctx, pageID, props); err != nil {
			return fmt.Errorf("NotionExporter.Export %s: %w", tx.ID, err)
		}
		log := logger.FromContext(ctx)
		log.Debug().Str("page_id", pageID).Msg("Updated Notion page")
		return nil
	}

	if _, err := e.svc.CreatePage(ctx, e.databaseID, props); err != nil {
		return fmt.Errorf("NotionExporter.Export %s: %w", tx.ID, err)
	}
	return nil
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

// TransactionProperties maps a transaction onto the Notion transactions database.
func TransactionProperties(tx domain.Transaction) notionapi.Properties {
	amount, _ := tx.Amount.Float64()
	props := notionapi.Properties{
		"Description": notionapi.TitleProperty{
			Title: richText(tx.DisplayDescription()),
		},
		TransactionIDProperty: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		"Amount": notionapi.NumberProperty{
			Number: amount,
		},
		"Raw Description": notionapi.RichTextProperty{
			RichText: richText(tx.Description),
		},
	}

	if tx.HasDate() {
		d := notionapi.Date(time.Date(tx.Date.Year(), tx.Date.Month(), tx.Date.Day(), 0, 0, 0, 0, time.UTC))
		props["Date"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	if tx.Category != nil {
		props["Category"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category.Main},
		}
		if tx.Category.Sub != "" {
			props["Subcategory"] = notionapi.SelectProperty{
				Select: notionapi.Option{Name: tx.Category.Sub},
			}
		}
	}

	if tx.EmailSnippet != "" {
		props["Notes"] = notionapi.RichTextProperty{
			RichText: richText(tx.EmailSnippet),
		}
	}
	return props
}
