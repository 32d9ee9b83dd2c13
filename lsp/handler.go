// Package lsp serves storyline's editor features over the Language Server
// Protocol: entity hover, completion, go-to-definition, mention code lenses
// and published consistency diagnostics.
package lsp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/teranos/storyline/detect"
	"github.com/teranos/storyline/diagnostics"
	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/internal/util"
	"github.com/teranos/storyline/lexical"
	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/project"
	"github.com/teranos/storyline/textdoc"
	"github.com/teranos/storyline/version"
)

// ServerName is reported to clients in the initialize response.
const ServerName = "storyline"

// Commands accepted by workspace/executeCommand.
const (
	CommandClearCache = "storyline/clearCache"
)

// Config wires a Handler to the shared project services.
type Config struct {
	Detector    *project.Detector
	Contexts    *project.ContextManager
	Diagnostics *diagnostics.Generator

	// MaxDocuments bounds the open-document cache (default DefaultMaxDocuments)
	MaxDocuments int

	Logger *zap.SugaredLogger
}

// Handler implements the LSP methods for one client connection.
type Handler struct {
	detector    *project.Detector
	contexts    *project.ContextManager
	diagnostics *diagnostics.Generator
	documents   *documentStore
	logger      *zap.SugaredLogger

	// ctx is canceled on shutdown and bounds background diagnostics runs
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandler creates a handler. Diagnostics may be nil to disable publishing.
func NewHandler(cfg Config) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		detector:    cfg.Detector,
		contexts:    cfg.Contexts,
		diagnostics: cfg.Diagnostics,
		documents:   newDocumentStore(cfg.MaxDocuments),
		logger:      logger.OrGlobal(cfg.Logger, "lsp"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Protocol returns the glsp method table for this handler.
func (h *Handler) Protocol() *protocol.Handler {
	return &protocol.Handler{
		Initialize:              h.Initialize,
		Initialized:             h.Initialized,
		Shutdown:                h.Shutdown,
		SetTrace:                h.SetTrace,
		TextDocumentDidOpen:     h.TextDocumentDidOpen,
		TextDocumentDidChange:   h.TextDocumentDidChange,
		TextDocumentDidSave:     h.TextDocumentDidSave,
		TextDocumentDidClose:    h.TextDocumentDidClose,
		TextDocumentHover:       h.TextDocumentHover,
		TextDocumentCompletion:  h.TextDocumentCompletion,
		TextDocumentDefinition:  h.TextDocumentDefinition,
		TextDocumentCodeLens:    h.TextDocumentCodeLens,
		WorkspaceExecuteCommand: h.WorkspaceExecuteCommand,
	}
}

// Initialize handles LSP initialize request
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	h.logger.Infow("LSP client initializing", "client", params.ClientInfo)

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities := protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: util.Ptr(true),
			Change:    &syncKind,
			Save:      true,
		},
		CompletionProvider: &protocol.CompletionOptions{
			TriggerCharacters: []string{"\"", "'", "[", ",", " "},
		},
		HoverProvider:      true,
		DefinitionProvider: true,
		CodeLensProvider:   &protocol.CodeLensOptions{},
		ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
			Commands: []string{CommandClearCache},
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    ServerName,
			Version: util.Ptr(version.Get().Version),
		},
	}, nil
}

// Initialized is called after client receives InitializeResult
func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	h.logger.Infow("LSP client initialized")
	return nil
}

// Shutdown stops background work and releases diagnostic sources.
func (h *Handler) Shutdown(ctx *glsp.Context) error {
	h.logger.Infow("LSP client shutting down")
	h.cancel()
	if h.diagnostics != nil {
		h.diagnostics.Cancel()
		h.diagnostics.Dispose()
	}
	h.wg.Wait()
	return nil
}

// SetTrace accepts trace level changes; logging verbosity is set by flags.
func (h *Handler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// TextDocumentDidOpen handles document open notifications
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	rev, evicted := h.documents.Set(uri, params.TextDocument.Text)
	if evicted != "" {
		h.logger.Infow("Document cache limit reached, evicted oldest document",
			"evicted_uri", evicted,
			logger.FieldURI, uri)
		if h.diagnostics != nil {
			h.diagnostics.Forget(evicted)
		}
	}
	h.logger.Debugw("Document opened", logger.FieldURI, uri, "length", len(params.TextDocument.Text))

	h.publishAsync(ctx, uri, params.TextDocument.Text, rev)
	return nil
}

// TextDocumentDidChange handles document change notifications (full sync)
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := string(params.TextDocument.URI)

	var (
		content string
		changed bool
	)
	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			content, changed = whole.Text, true
		}
	}
	if !changed {
		return nil
	}

	rev, _ := h.documents.Set(uri, content)
	h.logger.Debugw("Document changed", logger.FieldURI, uri, "changes", len(params.ContentChanges))

	h.publishAsync(ctx, uri, content, rev)
	return nil
}

// TextDocumentDidSave re-runs diagnostics for the saved document.
func (h *Handler) TextDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	content, ok := h.documents.Get(uri)
	if params.Text != nil {
		content, ok = *params.Text, true
		h.documents.Set(uri, content)
	}
	if !ok {
		return nil
	}
	h.publishAsync(ctx, uri, content, h.documents.Version(uri))
	return nil
}

// TextDocumentDidClose handles document close notifications
func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	h.documents.Remove(uri)
	if h.diagnostics != nil {
		h.diagnostics.Forget(uri)
	}
	h.notify(ctx, uri, []protocol.Diagnostic{})
	h.logger.Debugw("Document closed", logger.FieldURI, uri)
	return nil
}

// projectContext resolves the project of uri. Failures degrade to nil so
// editor features return empty results.
func (h *Handler) projectContext(uri string) *project.ProjectContext {
	if h.detector == nil || h.contexts == nil {
		return nil
	}
	root := h.detector.DetectProjectRoot(uri)
	pc, err := h.contexts.GetContext(h.ctx, root)
	if err != nil {
		h.logger.Warnw("Project context unavailable",
			logger.FieldURI, uri,
			logger.FieldProjectRoot, root,
			logger.FieldError, err)
		return nil
	}
	return pc
}

// TextDocumentHover shows entity details for the mention under the cursor.
func (h *Handler) TextDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (result *protocol.Hover, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in hover handler", "panic", r, logger.FieldURI, params.TextDocument.URI)
			result, err = nil, nil
		}
	}()

	uri := string(params.TextDocument.URI)
	content, ok := h.documents.Get(uri)
	if !ok || content == "" {
		return nil, nil
	}
	pc := h.projectContext(uri)
	if pc == nil {
		return nil, nil
	}

	match, ok := pc.Detector.ResolveAtPosition(content, fromPosition(params.Position))
	if !ok {
		return nil, nil
	}

	h.logger.Debugw("LSP hover result", logger.FieldEntityID, match.Entity.ID)
	rng := toRange(match.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: HoverMarkdown(pc, match.Entity),
		},
		Range: &rng,
	}, nil
}

// HoverMarkdown renders the hover card of an entity.
func HoverMarkdown(pc *project.ProjectContext, e *entity.DetectableEntity) string {
	info, ok := pc.Info(e.ID)
	if !ok {
		info = project.EntityInfo{ID: e.ID, Kind: e.Kind, Name: e.DisplayName()}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s `%s`)", info.Name, info.Kind, info.ID)
	if info.Role != "" {
		fmt.Fprintf(&b, "\n\nRole: %s", info.Role)
	}
	if info.Summary != "" {
		fmt.Fprintf(&b, "\n\n%s", info.Summary)
	}
	if info.Status != "" {
		fmt.Fprintf(&b, "\n\nStatus: %s", info.Status)
	}
	if len(e.Aliases) > 0 {
		fmt.Fprintf(&b, "\n\nAliases: %s", strings.Join(e.Aliases, ", "))
	}
	return b.String()
}

// TextDocumentCompletion offers entity ids inside entity reference fields
// and entity names elsewhere.
func (h *Handler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in completion handler", "panic", r, logger.FieldURI, params.TextDocument.URI)
			result, err = []protocol.CompletionItem{}, nil
		}
	}()

	uri := string(params.TextDocument.URI)
	content, ok := h.documents.Get(uri)
	if !ok {
		return []protocol.CompletionItem{}, nil
	}
	pc := h.projectContext(uri)
	if pc == nil {
		return []protocol.CompletionItem{}, nil
	}

	pos := fromPosition(params.Position)
	syntax := textdoc.SyntaxForPath(uri)
	lc := lexical.Analyze(content, pos.Line, pos.Character, syntax)

	items := Completions(pc, lc, pos)
	h.logger.Debugw("LSP completion result",
		logger.FieldURI, uri,
		logger.FieldSyntax, syntax,
		"field", lc.FieldName,
		logger.FieldCount, len(items))
	return items, nil
}

// Completions builds completion items for a lexical context. Inside a value
// of an entity reference field (e.g. characters: [...]) the ids of that kind
// are offered, replacing the partial value; elsewhere every entity's
// display name is offered.
func Completions(pc *project.ProjectContext, lc lexical.Context, pos textdoc.Position) []protocol.CompletionItem {
	items := []protocol.CompletionItem{}

	if kind, ok := entity.KindForFrontmatterKey(lc.FieldName); ok && lc.InStringLiteral {
		end := lc.StringEnd
		if end < 0 {
			end = pos.Character
		}
		replace := toRange(textdoc.LineRange(pos.Line, lc.StringStart, end))
		for _, e := range pc.Index.ByKind(kind) {
			items = append(items, protocol.CompletionItem{
				Label:    e.ID,
				Kind:     util.Ptr(protocol.CompletionItemKindReference),
				Detail:   util.Ptr(e.DisplayName()),
				SortText: util.Ptr(e.ID),
				TextEdit: protocol.TextEdit{Range: replace, NewText: e.ID},
			})
		}
		return items
	}

	for _, e := range pc.Index.Entities() {
		items = append(items, protocol.CompletionItem{
			Label:      e.DisplayName(),
			Kind:       completionKind(e.Kind),
			Detail:     util.Ptr(fmt.Sprintf("%s %s", e.Kind, e.ID)),
			FilterText: util.Ptr(strings.Join(e.Terms(), " ")),
		})
	}
	return items
}

func completionKind(k entity.Kind) *protocol.CompletionItemKind {
	var kind protocol.CompletionItemKind
	switch k {
	case entity.KindCharacter:
		kind = protocol.CompletionItemKindClass
	case entity.KindSetting:
		kind = protocol.CompletionItemKindModule
	case entity.KindForeshadowing:
		kind = protocol.CompletionItemKindEvent
	case entity.KindTimeline:
		kind = protocol.CompletionItemKindValue
	default:
		kind = protocol.CompletionItemKindText
	}
	return &kind
}

// TextDocumentDefinition jumps from a mention to its definition file.
func (h *Handler) TextDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in definition handler", "panic", r, logger.FieldURI, params.TextDocument.URI)
			result, err = []protocol.Location{}, nil
		}
	}()

	uri := string(params.TextDocument.URI)
	content, ok := h.documents.Get(uri)
	if !ok {
		return []protocol.Location{}, nil
	}
	pc := h.projectContext(uri)
	if pc == nil {
		return []protocol.Location{}, nil
	}

	match, ok := pc.Detector.ResolveAtPosition(content, fromPosition(params.Position))
	if !ok || match.Entity.SourcePath == "" {
		return []protocol.Location{}, nil
	}
	return []protocol.Location{{
		URI:   protocol.DocumentUri(project.PathToURI(match.Entity.SourcePath)),
		Range: toRange(textdoc.LineRange(0, 0, 0)),
	}}, nil
}

// TextDocumentCodeLens summarises entity mentions.
func (h *Handler) TextDocumentCodeLens(ctx *glsp.Context, params *protocol.CodeLensParams) (result []protocol.CodeLens, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in code lens handler", "panic", r, logger.FieldURI, params.TextDocument.URI)
			result, err = []protocol.CodeLens{}, nil
		}
	}()

	uri := string(params.TextDocument.URI)
	content, ok := h.documents.Get(uri)
	if !ok {
		return []protocol.CodeLens{}, nil
	}
	pc := h.projectContext(uri)
	if pc == nil {
		return []protocol.CodeLens{}, nil
	}
	return CodeLenses(pc.Detector, content), nil
}

// CodeLenses returns a document summary lens on line 0 followed by one lens
// per entity on the line of its first mention.
func CodeLenses(d *detect.Detector, content string) []protocol.CodeLens {
	matches := d.DetectAll(content)
	lenses := []protocol.CodeLens{}
	if len(matches) == 0 {
		return lenses
	}

	type tally struct {
		entity *entity.DetectableEntity
		first  textdoc.Range
		count  int
	}
	var order []*tally
	byID := make(map[string]*tally)
	for _, m := range matches {
		t, ok := byID[m.Entity.ID]
		if !ok {
			t = &tally{entity: m.Entity, first: m.Range}
			byID[m.Entity.ID] = t
			order = append(order, t)
		}
		t.count++
	}

	lenses = append(lenses, protocol.CodeLens{
		Range: toRange(textdoc.LineRange(0, 0, 0)),
		Command: &protocol.Command{
			Title: fmt.Sprintf("%d entity mentions (%d distinct)", len(matches), len(order)),
		},
	})

	sort.SliceStable(order, func(i, j int) bool { return order[i].first.Start.Line < order[j].first.Start.Line })
	for _, t := range order {
		lenses = append(lenses, protocol.CodeLens{
			Range: toRange(textdoc.LineRange(t.first.Start.Line, t.first.Start.Character, t.first.Start.Character)),
			Command: &protocol.Command{
				Title: fmt.Sprintf("%s: %d mentions", t.entity.DisplayName(), t.count),
			},
		})
	}
	return lenses
}

// WorkspaceExecuteCommand runs storyline commands.
func (h *Handler) WorkspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	switch params.Command {
	case CommandClearCache:
		h.ClearCaches()
		return nil, nil
	}
	return nil, errors.Mark(errors.Newf("unknown command %q", params.Command), errors.ErrInvalidRequest)
}

// ClearCaches drops cached project roots and contexts.
func (h *Handler) ClearCaches() {
	if h.detector != nil {
		h.detector.ClearCache()
	}
	if h.contexts != nil {
		h.contexts.ClearCache()
	}
	h.logger.Infow("Cleared project caches")
}

// publishAsync generates diagnostics in the background and publishes them
// unless the document changed again meanwhile.
func (h *Handler) publishAsync(ctx *glsp.Context, uri, content string, rev uint64) {
	if h.diagnostics == nil || h.detector == nil || ctx == nil || ctx.Notify == nil {
		return
	}
	root := h.detector.DetectProjectRoot(uri)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		diags := h.diagnostics.Generate(h.ctx, uri, content, root)
		if h.ctx.Err() != nil || h.documents.Version(uri) != rev {
			return
		}
		h.notify(ctx, uri, ToProtocolDiagnostics(diags))
	}()
}

func (h *Handler) notify(ctx *glsp.Context, uri string, diags []protocol.Diagnostic) {
	if ctx == nil || ctx.Notify == nil {
		return
	}
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(uri),
		Diagnostics: diags,
	})
}
