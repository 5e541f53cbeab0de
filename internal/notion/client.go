package notion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"github.com/sethvargo/go-retry"
)

const queryPageSize = 100

// Client talks to the Notion API on behalf of the sync engine. It pages
// through query results transparently, classifies errors, and retries
// rate-limited and transient network failures with exponential backoff.
type Client struct {
	api           *notionapi.Client
	retryAttempts int
	requestDelay  time.Duration

	mu          sync.Mutex
	schemaCache map[string]map[string]string // database id -> property name -> type
	titleCache  map[string]string            // database id -> title property name
}

// NewClient creates a Notion API client.
func NewClient(token string, retryAttempts int, requestDelayMs int) *Client {
	return &Client{
		api:           notionapi.NewClient(notionapi.Token(token)),
		retryAttempts: retryAttempts,
		requestDelay:  time.Duration(requestDelayMs) * time.Millisecond,
		schemaCache:   make(map[string]map[string]string),
		titleCache:    make(map[string]string),
	}
}

// withRetry runs fn with exponential backoff on retryable failures.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(c.retryAttempts), retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := classify(op, fn(ctx))
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			slog.Debug("retrying notion call", "op", op, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// pace sleeps the configured inter-request delay, bailing on ctx cancel.
func (c *Client) pace(ctx context.Context) {
	if c.requestDelay <= 0 {
		return
	}
	select {
	case <-time.After(c.requestDelay):
	case <-ctx.Done():
	}
}

// ListCollectionRecords fetches every record in the database, paging
// through all query results and fetching each page's body blocks.
func (c *Client) ListCollectionRecords(ctx context.Context, databaseID string) ([]Record, error) {
	var records []Record
	var cursor notionapi.Cursor

	for {
		var resp *notionapi.DatabaseQueryResponse
		err := c.withRetry(ctx, "query database", func(ctx context.Context) error {
			var qerr error
			resp, qerr = c.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), &notionapi.DatabaseQueryRequest{
				StartCursor: cursor,
				PageSize:    queryPageSize,
			})
			return qerr
		})
		if err != nil {
			return nil, fmt.Errorf("listing records for database %s: %w", databaseID, err)
		}

		for i := range resp.Results {
			page := resp.Results[i]
			body, err := c.fetchBody(ctx, string(page.ID))
			if err != nil {
				slog.Warn("failed to fetch page body", "page_id", page.ID, "error", err)
				body = ""
			}
			records = append(records, Record{
				ID:         string(page.ID),
				Properties: fromAPIProperties(page.Properties),
				Body:       body,
				LastEdited: page.LastEditedTime,
			})
			c.pace(ctx)
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	slog.Debug("fetched records", "database_id", databaseID, "count", len(records))
	return records, nil
}

// fetchBody reads a page's block children and renders them as markdown.
func (c *Client) fetchBody(ctx context.Context, pageID string) (string, error) {
	var blocks []notionapi.Block
	pagination := &notionapi.Pagination{PageSize: queryPageSize}

	for {
		var resp *notionapi.GetChildrenResponse
		err := c.withRetry(ctx, "get block children", func(ctx context.Context) error {
			var gerr error
			resp, gerr = c.api.Block.GetChildren(ctx, notionapi.BlockID(pageID), pagination)
			return gerr
		})
		if err != nil {
			return "", err
		}

		blocks = append(blocks, resp.Results...)
		if !resp.HasMore {
			break
		}
		pagination.StartCursor = notionapi.Cursor(resp.NextCursor)
	}

	return blocksToMarkdown(blocks), nil
}

// GetRecordSchema returns the database's property name -> type mapping.
func (c *Client) GetRecordSchema(ctx context.Context, databaseID string) (map[string]string, error) {
	c.mu.Lock()
	if schema, ok := c.schemaCache[databaseID]; ok {
		c.mu.Unlock()
		return schema, nil
	}
	c.mu.Unlock()

	var db *notionapi.Database
	err := c.withRetry(ctx, "get database", func(ctx context.Context) error {
		var gerr error
		db, gerr = c.api.Database.Get(ctx, notionapi.DatabaseID(databaseID))
		return gerr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching schema for database %s: %w", databaseID, err)
	}

	schema := make(map[string]string, len(db.Properties))
	titleName := ""
	for name, prop := range db.Properties {
		t := string(prop.GetType())
		schema[name] = t
		if t == string(TypeTitle) {
			titleName = name
		}
	}

	c.mu.Lock()
	c.schemaCache[databaseID] = schema
	c.titleCache[databaseID] = titleName
	c.mu.Unlock()

	return schema, nil
}

// ResolveRecordTitle looks up the display title of one record.
func (c *Client) ResolveRecordTitle(ctx context.Context, recordID string) (string, error) {
	var page *notionapi.Page
	err := c.withRetry(ctx, "get page", func(ctx context.Context) error {
		var gerr error
		page, gerr = c.api.Page.Get(ctx, notionapi.PageID(recordID))
		return gerr
	})
	if err != nil {
		return "", err
	}

	for _, prop := range page.Properties {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			return richTextPlain(tp.Title), nil
		}
	}
	return "", nil
}

// CreateRecord creates a new page in the database and returns its id.
// A title-typed property in props is remapped onto the database's actual
// title property name.
func (c *Client) CreateRecord(ctx context.Context, databaseID string, props map[string]Property, body string) (string, error) {
	apiProps, err := c.toAPIProperties(ctx, databaseID, props)
	if err != nil {
		return "", err
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: apiProps,
	}
	if body != "" {
		req.Children = markdownToBlocks(body)
	}

	var page *notionapi.Page
	err = c.withRetry(ctx, "create page", func(ctx context.Context) error {
		var cerr error
		page, cerr = c.api.Page.Create(ctx, req)
		return cerr
	})
	if err != nil {
		return "", fmt.Errorf("creating record in database %s: %w", databaseID, err)
	}

	slog.Info("created notion record", "record_id", page.ID)
	return string(page.ID), nil
}

// UpdateRecord updates an existing page's properties and, when body is
// non-empty, appends the body as new blocks. Existing blocks are never
// removed (sync is additive).
func (c *Client) UpdateRecord(ctx context.Context, recordID string, props map[string]Property, body string) error {
	apiProps := make(notionapi.Properties, len(props))
	for name, p := range props {
		if ap := toAPIProperty(p); ap != nil {
			apiProps[name] = ap
		}
	}

	err := c.withRetry(ctx, "update page", func(ctx context.Context) error {
		_, uerr := c.api.Page.Update(ctx, notionapi.PageID(recordID), &notionapi.PageUpdateRequest{
			Properties: apiProps,
		})
		return uerr
	})
	if err != nil {
		return fmt.Errorf("updating record %s: %w", recordID, err)
	}

	if body != "" {
		err = c.withRetry(ctx, "append blocks", func(ctx context.Context) error {
			_, aerr := c.api.Block.AppendChildren(ctx, notionapi.BlockID(recordID), &notionapi.AppendBlockChildrenRequest{
				Children: markdownToBlocks(body),
			})
			return aerr
		})
		if err != nil {
			return fmt.Errorf("appending body to record %s: %w", recordID, err)
		}
	}

	return nil
}

// toAPIProperties converts engine properties for a create call, renaming
// the title-typed entry to the database's title property.
func (c *Client) toAPIProperties(ctx context.Context, databaseID string, props map[string]Property) (notionapi.Properties, error) {
	if _, err := c.GetRecordSchema(ctx, databaseID); err != nil {
		return nil, err
	}
	c.mu.Lock()
	titleName := c.titleCache[databaseID]
	c.mu.Unlock()

	apiProps := make(notionapi.Properties, len(props))
	for name, p := range props {
		ap := toAPIProperty(p)
		if ap == nil {
			slog.Debug("skipping property with no API representation", "property", name, "type", p.Type)
			continue
		}
		if p.Type == TypeTitle && titleName != "" {
			name = titleName
		}
		apiProps[name] = ap
	}
	return apiProps, nil
}

// toAPIProperty converts one engine property to its API form. Types the
// engine never writes (relation, formula, rollup, timestamps) return nil.
func toAPIProperty(p Property) notionapi.Property {
	switch p.Type {
	case TypeTitle:
		return &notionapi.TitleProperty{Title: richTextFrom(p.Text)}
	case TypeRichText:
		return &notionapi.RichTextProperty{RichText: richTextFrom(p.Text)}
	case TypeNumber:
		return &notionapi.NumberProperty{Number: p.Number}
	case TypeCheckbox:
		return &notionapi.CheckboxProperty{Checkbox: p.Checked}
	case TypeSelect:
		return &notionapi.SelectProperty{Select: notionapi.Option{Name: p.Text}}
	case TypeMultiSelect:
		opts := make([]notionapi.Option, 0, len(p.List))
		for _, name := range p.List {
			opts = append(opts, notionapi.Option{Name: name})
		}
		return &notionapi.MultiSelectProperty{MultiSelect: opts}
	case TypeDate:
		if p.Time == nil {
			return nil
		}
		d := notionapi.Date(*p.Time)
		return &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	case TypeURL:
		return &notionapi.URLProperty{URL: p.Text}
	case TypeEmail:
		return &notionapi.EmailProperty{Email: p.Text}
	case TypePhone:
		return &notionapi.PhoneNumberProperty{PhoneNumber: p.Text}
	default:
		return nil
	}
}

// fromAPIProperties converts a fetched page's properties into the
// engine's model.
func fromAPIProperties(props notionapi.Properties) map[string]Property {
	out := make(map[string]Property, len(props))
	for name, p := range props {
		out[name] = fromAPIProperty(p)
	}
	return out
}

func fromAPIProperty(p notionapi.Property) Property {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return Property{Type: TypeTitle, Text: richTextPlain(v.Title)}
	case *notionapi.RichTextProperty:
		return Property{Type: TypeRichText, Text: richTextPlain(v.RichText)}
	case *notionapi.NumberProperty:
		return Property{Type: TypeNumber, Number: v.Number, HasNumber: true}
	case *notionapi.SelectProperty:
		return Property{Type: TypeSelect, Text: v.Select.Name}
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(v.MultiSelect))
		for _, opt := range v.MultiSelect {
			names = append(names, opt.Name)
		}
		return Property{Type: TypeMultiSelect, List: names}
	case *notionapi.CheckboxProperty:
		return Property{Type: TypeCheckbox, Checked: v.Checkbox}
	case *notionapi.DateProperty:
		prop := Property{Type: TypeDate}
		if v.Date != nil && v.Date.Start != nil {
			t := time.Time(*v.Date.Start)
			prop.Time = &t
		}
		return prop
	case *notionapi.URLProperty:
		return Property{Type: TypeURL, Text: v.URL}
	case *notionapi.EmailProperty:
		return Property{Type: TypeEmail, Text: v.Email}
	case *notionapi.PhoneNumberProperty:
		return Property{Type: TypePhone, Text: v.PhoneNumber}
	case *notionapi.StatusProperty:
		return Property{Type: TypeStatus, Text: v.Status.Name}
	case *notionapi.RelationProperty:
		ids := make([]string, 0, len(v.Relation))
		for _, rel := range v.Relation {
			ids = append(ids, string(rel.ID))
		}
		return Property{Type: TypeRelation, Relations: ids}
	case *notionapi.CreatedTimeProperty:
		t := v.CreatedTime
		return Property{Type: TypeCreatedTime, Time: &t}
	case *notionapi.LastEditedTimeProperty:
		t := v.LastEditedTime
		return Property{Type: TypeLastEditedTime, Time: &t}
	case *notionapi.CreatedByProperty:
		return Property{Type: TypeCreatedBy, Text: v.CreatedBy.Name}
	case *notionapi.LastEditedByProperty:
		return Property{Type: TypeLastEditedBy, Text: v.LastEditedBy.Name}
	case *notionapi.FormulaProperty:
		return fromFormula(v.Formula)
	case *notionapi.RollupProperty:
		return fromRollup(v.Rollup)
	case *notionapi.PeopleProperty:
		names := make([]string, 0, len(v.People))
		for _, u := range v.People {
			names = append(names, u.Name)
		}
		return Property{Type: TypePeople, List: names}
	case *notionapi.FilesProperty:
		names := make([]string, 0, len(v.Files))
		for _, f := range v.Files {
			names = append(names, f.Name)
		}
		return Property{Type: TypeFiles, List: names}
	default:
		return Property{Type: TypeUnknown, RawType: string(p.GetType())}
	}
}

func fromFormula(f notionapi.Formula) Property {
	prop := Property{Type: TypeFormula}
	switch f.Type {
	case notionapi.FormulaTypeString:
		prop.Text = f.String
	case notionapi.FormulaTypeNumber:
		prop.Number = f.Number
		prop.HasNumber = true
	case notionapi.FormulaTypeBoolean:
		prop.Checked = f.Boolean
	case notionapi.FormulaTypeDate:
		if f.Date != nil && f.Date.Start != nil {
			t := time.Time(*f.Date.Start)
			prop.Time = &t
		}
	}
	return prop
}

func fromRollup(r notionapi.Rollup) Property {
	prop := Property{Type: TypeRollup}
	switch r.Type {
	case notionapi.RollupTypeNumber:
		prop.Number = r.Number
		prop.HasNumber = true
	case notionapi.RollupTypeDate:
		if r.Date != nil && r.Date.Start != nil {
			t := time.Time(*r.Date.Start)
			prop.Time = &t
		}
	}
	return prop
}
