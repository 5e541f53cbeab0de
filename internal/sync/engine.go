package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/vonshlovens/obsync-notion/internal/config"
	"github.com/vonshlovens/obsync-notion/internal/notion"
	"github.com/vonshlovens/obsync-notion/internal/parser"
	"github.com/vonshlovens/obsync-notion/internal/transform"
	"github.com/vonshlovens/obsync-notion/internal/vault"
)

// Front-matter keys the engine stamps into synced documents.
const (
	KeyRemoteID = "notion-id"
	KeySyncedAt = "notion-synced"
)

// RemoteClient is the remote collaborator the engine talks to. Paging
// and error classification are the client's responsibility.
type RemoteClient interface {
	ListCollectionRecords(ctx context.Context, databaseID string) ([]notion.Record, error)
	GetRecordSchema(ctx context.Context, databaseID string) (map[string]string, error)
	ResolveRecordTitle(ctx context.Context, recordID string) (string, error)
	CreateRecord(ctx context.Context, databaseID string, props map[string]notion.Property, body string) (string, error)
	UpdateRecord(ctx context.Context, recordID string, props map[string]notion.Property, body string) error
}

// ConfigError is a configuration problem fatal to one sync pair,
// detected before any I/O.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid sync configuration: %s %s", e.Field, e.Reason)
}

// RunSummary aggregates per-item outcomes for one sync invocation.
type RunSummary struct {
	Created   int
	Updated   int
	Failed    int
	Conflicts int

	// ConflictItems lists document paths left unresolved under the
	// manual policy.
	ConflictItems []string
}

// RunResult pairs one sync configuration with its outcome.
type RunResult struct {
	Config  config.SyncConfig
	Summary *RunSummary
	Err     error
}

// PersistFunc writes an updated sync configuration back to storage.
// Injected at construction; the engine never reaches for settings
// persistence itself.
type PersistFunc func(config.SyncConfig) error

// Engine runs sync algorithms for configured pairs. Records and
// documents within a run are processed sequentially to keep log order
// readable and respect the remote side's rate limits.
type Engine struct {
	client       RemoteClient
	store        vault.Store
	policy       string
	persist      PersistFunc
	showProgress bool
}

// Options configures an Engine.
type Options struct {
	// ConflictPolicy applies in bidirectional mode: notion-wins,
	// obsidian-wins, newer-wins or manual.
	ConflictPolicy string

	// Persist is called with the updated config after each successful
	// run in SyncAll. May be nil.
	Persist PersistFunc

	// ShowProgress renders progress bars during batch loops.
	ShowProgress bool
}

// NewEngine creates a sync engine.
func NewEngine(client RemoteClient, store vault.Store, opts Options) *Engine {
	policy := opts.ConflictPolicy
	if policy == "" {
		policy = config.PolicyNewerWins
	}
	return &Engine{
		client:       client,
		store:        store,
		policy:       policy,
		persist:      opts.Persist,
		showProgress: opts.ShowProgress,
	}
}

// Run executes one sync for the given pair. The config is a snapshot:
// the caller's value is never mutated, and an updated copy (last-sync
// stamped) is returned on success.
func (e *Engine) Run(ctx context.Context, cfg config.SyncConfig, override config.Direction) (config.SyncConfig, *RunSummary, error) {
	if cfg.DatabaseID == "" {
		return cfg, nil, &ConfigError{Field: "database_id", Reason: "is missing"}
	}
	if cfg.FolderPath == "" {
		return cfg, nil, &ConfigError{Field: "folder_path", Reason: "is missing"}
	}

	direction := cfg.Direction
	if override != "" {
		direction = override
	}

	if len(cfg.Mappings) == 0 {
		switch direction {
		case config.DirectionPush:
			return cfg, nil, &ConfigError{Field: "mappings", Reason: "are required for obsidian-to-notion sync"}
		case config.DirectionBidirectional:
			slog.Warn("no field mappings, downgrading bidirectional sync to notion-to-obsidian",
				"config", cfg.Name)
			direction = config.DirectionPull
		}
	}

	start := time.Now()
	slog.Info("sync started", "config", cfg.Name, "direction", direction)

	var summary *RunSummary
	var err error
	switch direction {
	case config.DirectionPull:
		summary, err = e.pull(ctx, &cfg)
	case config.DirectionPush:
		summary, err = e.push(ctx, &cfg)
	case config.DirectionBidirectional:
		summary, err = e.merge(ctx, &cfg)
	default:
		return cfg, nil, &ConfigError{Field: "direction", Reason: fmt.Sprintf("%q is not recognized", direction)}
	}
	if err != nil {
		return cfg, nil, fmt.Errorf("sync %q failed: %w", cfg.Name, err)
	}

	cfg.LastSyncMillis = time.Now().UnixMilli()
	slog.Info("sync completed",
		"config", cfg.Name,
		"created", summary.Created,
		"updated", summary.Updated,
		"failed", summary.Failed,
		"conflicts", summary.Conflicts,
		"duration_s", time.Since(start).Seconds())

	return cfg, summary, nil
}

// SyncAll runs every enabled pair sequentially. A pair's failure is
// reported in its result and does not stop later pairs.
func (e *Engine) SyncAll(ctx context.Context, settings *config.Settings) []RunResult {
	results := make([]RunResult, 0, len(settings.SyncConfigs))

	for _, cfg := range settings.SyncConfigs {
		if !cfg.Enabled {
			slog.Debug("skipping disabled sync pair", "config", cfg.Name)
			continue
		}

		updated, summary, err := e.Run(ctx, cfg, "")
		if err != nil {
			slog.Error("sync pair failed", "config", cfg.Name, "error", err)
			results = append(results, RunResult{Config: cfg, Err: err})
			continue
		}

		if e.persist != nil {
			if perr := e.persist(updated); perr != nil {
				slog.Warn("failed to persist sync config", "config", cfg.Name, "error", perr)
			}
		}
		results = append(results, RunResult{Config: updated, Summary: summary})
	}

	return results
}

// pull fetches the full remote snapshot and writes every record into
// the local folder, overwriting files at already-derived paths.
func (e *Engine) pull(ctx context.Context, cfg *config.SyncConfig) (*RunSummary, error) {
	records, err := e.client.ListCollectionRecords(ctx, cfg.DatabaseID)
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}

	if err := e.store.EnsureFolder(cfg.FolderPath); err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	bar := e.newBar(len(records), "Pulling records")

	for i := range records {
		if err := e.pullRecord(ctx, cfg, &records[i], summary); err != nil {
			slog.Error("failed to pull record", "record_id", records[i].ID, "error", err)
			summary.Failed++
		}
		bar.Add(1)
	}
	bar.Finish()

	return summary, nil
}

// pullRecord converts one record and writes it to its derived path.
func (e *Engine) pullRecord(ctx context.Context, cfg *config.SyncConfig, rec *notion.Record, summary *RunSummary) error {
	docPath := e.derivePath(cfg, rec)
	content := e.renderRecord(ctx, cfg, rec)

	exists := e.store.Entry(docPath) == vault.EntryFile
	if err := e.store.CreateDocument(docPath, content); err != nil {
		return err
	}

	if exists {
		summary.Updated++
	} else {
		summary.Created++
	}
	slog.Debug("pulled record", "record_id", rec.ID, "path", docPath)
	return nil
}

// push enumerates local documents and mirrors them to the remote side,
// creating records for unlinked documents and linking them back.
func (e *Engine) push(ctx context.Context, cfg *config.SyncConfig) (*RunSummary, error) {
	handles, err := e.store.ListDocuments(cfg.FolderPath)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	summary := &RunSummary{}
	bar := e.newBar(len(handles), "Pushing documents")

	for _, h := range handles {
		if err := e.pushDocument(ctx, cfg, h, summary); err != nil {
			slog.Error("failed to push document", "path", h.Path, "error", err)
			summary.Failed++
		}
		bar.Add(1)
	}
	bar.Finish()

	return summary, nil
}

// pushDocument syncs a single local document to the remote side.
func (e *Engine) pushDocument(ctx context.Context, cfg *config.SyncConfig, h vault.Handle, summary *RunSummary) error {
	doc, err := e.loadDocument(h)
	if err != nil {
		return err
	}

	props, err := transform.ToProperties(doc.Frontmatter, cfg.Mappings)
	if err != nil {
		return err
	}

	if doc.RemoteID != "" {
		if err := e.client.UpdateRecord(ctx, doc.RemoteID, props, doc.Body); err != nil {
			return err
		}
		summary.Updated++
		slog.Debug("updated record", "record_id", doc.RemoteID, "path", h.Path)
		return nil
	}

	return e.createRemote(ctx, cfg, doc, props, summary)
}

// createRemote creates a record for an unlinked document and writes the
// new identifier back into its front-matter.
func (e *Engine) createRemote(ctx context.Context, cfg *config.SyncConfig, doc *LocalDocument, props map[string]notion.Property, summary *RunSummary) error {
	ensureTitle(props, doc.Handle.Path)

	newID, err := e.client.CreateRecord(ctx, cfg.DatabaseID, props, doc.Body)
	if err != nil {
		return err
	}

	doc.Frontmatter[KeyRemoteID] = newID
	doc.Frontmatter[KeySyncedAt] = time.Now().UTC().Format(time.RFC3339)
	content := parser.SerializeDocument(doc.Frontmatter, doc.Body)
	if err := e.store.WriteDocument(doc.Handle, content); err != nil {
		return fmt.Errorf("writing back link for %s: %w", doc.Handle.Path, err)
	}

	summary.Created++
	slog.Debug("created record", "record_id", newID, "path", doc.Handle.Path)
	return nil
}

// merge runs both directions over full snapshots. Records and documents
// match only through the stable identifier, never by filename or title.
func (e *Engine) merge(ctx context.Context, cfg *config.SyncConfig) (*RunSummary, error) {
	records, err := e.client.ListCollectionRecords(ctx, cfg.DatabaseID)
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}
	if err := e.store.EnsureFolder(cfg.FolderPath); err != nil {
		return nil, err
	}
	handles, err := e.store.ListDocuments(cfg.FolderPath)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	recordByID := make(map[string]*notion.Record, len(records))
	for i := range records {
		recordByID[records[i].ID] = &records[i]
	}

	docByID := make(map[string]*LocalDocument)
	var unlinked []*LocalDocument
	summary := &RunSummary{}

	for _, h := range handles {
		doc, err := e.loadDocument(h)
		if err != nil {
			slog.Error("failed to load document", "path", h.Path, "error", err)
			summary.Failed++
			continue
		}
		if doc.RemoteID == "" {
			unlinked = append(unlinked, doc)
			continue
		}
		if prev, dup := docByID[doc.RemoteID]; dup {
			slog.Warn("duplicate link, ignoring later document",
				"record_id", doc.RemoteID, "kept", prev.Handle.Path, "ignored", h.Path)
			continue
		}
		docByID[doc.RemoteID] = doc
	}

	// Local documents without a link, or linked to a record the fetched
	// snapshot does not know, become new remote records.
	for _, doc := range docByID {
		if _, known := recordByID[doc.RemoteID]; !known {
			unlinked = append(unlinked, doc)
		}
	}

	bar := e.newBar(len(records)+len(unlinked), "Merging")

	for i := range records {
		rec := &records[i]
		doc, linked := docByID[rec.ID]
		var err error
		if linked {
			err = e.mergePair(ctx, cfg, rec, doc, summary)
		} else {
			err = e.pullRecord(ctx, cfg, rec, summary)
		}
		if err != nil {
			slog.Error("failed to merge record", "record_id", rec.ID, "error", err)
			summary.Failed++
		}
		bar.Add(1)
	}

	for _, doc := range unlinked {
		props, err := transform.ToProperties(doc.Frontmatter, cfg.Mappings)
		if err == nil {
			err = e.createRemote(ctx, cfg, doc, props, summary)
		}
		if err != nil {
			slog.Error("failed to create record for document", "path", doc.Handle.Path, "error", err)
			summary.Failed++
		}
		bar.Add(1)
	}
	bar.Finish()

	return summary, nil
}

// mergePair resolves one linked record/document pair.
func (e *Engine) mergePair(ctx context.Context, cfg *config.SyncConfig, rec *notion.Record, doc *LocalDocument, summary *RunSummary) error {
	remoteFM := transform.ToFrontmatter(ctx, rec.Properties, cfg.Mappings, e.client)
	cs := detectChanges(remoteFM, rec.Body, doc, cfg.Mappings)

	resolution := resolve(e.policy, cs, rec.LastEdited.UnixMilli(), doc.Handle.ModTime.UnixMilli())
	switch resolution {
	case ResolutionNone:
		return nil

	case ResolutionApplyRemote:
		content := e.renderRecord(ctx, cfg, rec)
		if err := e.store.WriteDocument(doc.Handle, content); err != nil {
			return err
		}
		summary.Updated++
		slog.Debug("applied remote", "record_id", rec.ID, "path", doc.Handle.Path)
		return nil

	case ResolutionPushLocal:
		props, err := transform.ToProperties(doc.Frontmatter, cfg.Mappings)
		if err != nil {
			return err
		}
		body := ""
		if cs.content {
			body = doc.Body
		}
		if err := e.client.UpdateRecord(ctx, rec.ID, props, body); err != nil {
			return err
		}
		summary.Updated++
		slog.Debug("pushed local", "record_id", rec.ID, "path", doc.Handle.Path)
		return nil

	default:
		summary.Conflicts++
		summary.ConflictItems = append(summary.ConflictItems, doc.Handle.Path)
		slog.Warn("unresolved conflict", "record_id", rec.ID, "path", doc.Handle.Path)
		return nil
	}
}

// loadDocument reads and parses one local document.
func (e *Engine) loadDocument(h vault.Handle) (*LocalDocument, error) {
	raw, err := e.store.ReadDocument(h)
	if err != nil {
		return nil, err
	}

	fm, body := parser.ParseDocument(raw)
	doc := &LocalDocument{
		Handle:      h,
		Frontmatter: fm,
		Body:        body,
	}
	if id, ok := fm[KeyRemoteID].(string); ok {
		doc.RemoteID = id
	}
	return doc, nil
}

// renderRecord converts a record into document text, stamping the link
// identifier and sync timestamp into the front-matter.
func (e *Engine) renderRecord(ctx context.Context, cfg *config.SyncConfig, rec *notion.Record) string {
	fm := transform.ToFrontmatter(ctx, rec.Properties, cfg.Mappings, e.client)
	fm[KeyRemoteID] = rec.ID
	fm[KeySyncedAt] = time.Now().UTC().Format(time.RFC3339)
	return parser.SerializeDocument(fm, rec.Body)
}

// derivePath returns the vault-relative path a record syncs to.
func (e *Engine) derivePath(cfg *config.SyncConfig, rec *notion.Record) string {
	name := parser.DeriveFilename(rec, cfg.Mappings)
	return path.Join(cfg.FolderPath, name+".md")
}

// ensureTitle guarantees created records carry a title, derived from
// the document filename when no mapping produced one.
func ensureTitle(props map[string]notion.Property, docPath string) {
	for _, p := range props {
		if p.Type == notion.TypeTitle {
			return
		}
	}
	base := path.Base(docPath)
	title := strings.TrimSuffix(base, path.Ext(base))
	props["Name"] = notion.NewTitle(title)
}

// newBar returns a progress bar, or a silent one when progress display
// is disabled.
func (e *Engine) newBar(total int, description string) *progressbar.ProgressBar {
	if !e.showProgress {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}
