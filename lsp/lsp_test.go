package lsp

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/teranos/storyline/diagnostics"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/project"
)

type fixture struct {
	root    string
	handler *Handler
	docURI  string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixture(t *testing.T, withDiagnostics bool) *fixture {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, project.DefaultMarkerFile), `name = "勇者の旅"`)
	writeFile(t, filepath.Join(root, "characters", "hero.yaml"),
		"id: hero\nname: 勇者\naliases: [坊や]\nrole: protagonist\nsummary: 村の少年\n")
	writeFile(t, filepath.Join(root, "characters", "witch.yaml"), "id: witch\nname: 魔女\n")
	writeFile(t, filepath.Join(root, "settings", "village.yaml"), "id: village\nname: 始まりの村\n")
	doc := filepath.Join(root, "chapters", "01.md")
	writeFile(t, doc, "")

	log := zap.NewNop().Sugar()
	detector := project.NewDetector(project.DetectorConfig{FallbackRoot: t.TempDir(), Logger: log})
	contexts := project.NewContextManager(project.ManagerConfig{Logger: log})

	cfg := Config{Detector: detector, Contexts: contexts, Logger: log}
	if withDiagnostics {
		cfg.Diagnostics = diagnostics.NewGenerator(log, diagnostics.NewEntitySource(contexts))
	}
	return &fixture{root: root, handler: NewHandler(cfg), docURI: project.PathToURI(doc)}
}

func (f *fixture) open(t *testing.T, ctx *glsp.Context, text string) {
	t.Helper()
	require.NoError(t, f.handler.TextDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: protocol.DocumentUri(f.docURI), Text: text},
	}))
}

func (f *fixture) docID() protocol.TextDocumentIdentifier {
	return protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(f.docURI)}
}

func TestDocumentStoreLRU(t *testing.T) {
	s := newDocumentStore(2)

	v, evicted := s.Set("a", "1")
	assert.Equal(t, uint64(1), v)
	assert.Empty(t, evicted)
	s.Set("b", "2")
	s.Get("a") // a is now most recent

	_, evicted = s.Set("c", "3")
	assert.Equal(t, "b", evicted)
	assert.Equal(t, 2, s.Len())

	v, _ = s.Set("a", "1'")
	assert.Equal(t, uint64(2), v)
	content, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1'", content)

	s.Remove("a")
	assert.Equal(t, uint64(0), s.Version("a"))
}

func TestToProtocolSeverity(t *testing.T) {
	assert.Equal(t, protocol.DiagnosticSeverityError, ToProtocolSeverity(diagnostics.SeverityError))
	assert.Equal(t, protocol.DiagnosticSeverityWarning, ToProtocolSeverity(diagnostics.SeverityWarning))
	assert.Equal(t, protocol.DiagnosticSeverityInformation, ToProtocolSeverity(diagnostics.SeverityInfo))
	assert.Equal(t, protocol.DiagnosticSeverityHint, ToProtocolSeverity(diagnostics.SeverityHint))
}

func TestToProtocolDiagnostics(t *testing.T) {
	assert.NotNil(t, ToProtocolDiagnostics(nil))

	got := ToProtocolDiagnostics([]diagnostics.Diagnostic{{
		Message: "m", Severity: diagnostics.SeverityWarning, Source: "textlint", Code: "max-ten",
	}})
	require.Len(t, got, 1)
	assert.Equal(t, "textlint", *got[0].Source)
	assert.Equal(t, "max-ten", got[0].Code.Value)
}

func TestInitializeCapabilities(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.handler.Initialize(nil, &protocol.InitializeParams{})
	require.NoError(t, err)

	result, ok := res.(protocol.InitializeResult)
	require.True(t, ok)
	assert.Equal(t, ServerName, result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.CompletionProvider)
	assert.NotNil(t, result.Capabilities.CodeLensProvider)
	assert.Equal(t, []string{CommandClearCache}, result.Capabilities.ExecuteCommandProvider.Commands)
}

func TestHover(t *testing.T) {
	f := newFixture(t, false)
	f.open(t, nil, "昔々、勇者がいた。")

	hover, err := f.handler.TextDocumentHover(nil, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: f.docID(),
			Position:     protocol.Position{Line: 0, Character: 4},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, hover)

	content := hover.Contents.(protocol.MarkupContent)
	assert.Contains(t, content.Value, "**勇者** (character `hero`)")
	assert.Contains(t, content.Value, "Role: protagonist")
	assert.Contains(t, content.Value, "村の少年")
	assert.Contains(t, content.Value, "Aliases: 坊や")
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: 3},
		End:   protocol.Position{Line: 0, Character: 5},
	}, *hover.Range)

	none, err := f.handler.TextDocumentHover(nil, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: f.docID(),
			Position:     protocol.Position{Line: 0, Character: 0},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestHover_UnknownDocument(t *testing.T) {
	f := newFixture(t, false)

	hover, err := f.handler.TextDocumentHover(nil, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: f.docID()},
	})
	assert.NoError(t, err)
	assert.Nil(t, hover)
}

func TestCompletion_FrontmatterIDs(t *testing.T) {
	f := newFixture(t, false)
	f.open(t, nil, "---\ncharacters: [he\n---\n")

	res, err := f.handler.TextDocumentCompletion(nil, &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: f.docID(),
			Position:     protocol.Position{Line: 1, Character: 15},
		},
	})
	require.NoError(t, err)

	items := res.([]protocol.CompletionItem)
	require.Len(t, items, 2)
	assert.Equal(t, "hero", items[0].Label)
	assert.Equal(t, "勇者", *items[0].Detail)
	assert.Equal(t, "witch", items[1].Label)

	edit := items[0].TextEdit.(protocol.TextEdit)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 1, Character: 13},
		End:   protocol.Position{Line: 1, Character: 15},
	}, edit.Range)
}

func TestCompletion_BodyNames(t *testing.T) {
	f := newFixture(t, false)
	f.open(t, nil, "---\ntitle: 一\n---\n勇")

	res, err := f.handler.TextDocumentCompletion(nil, &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: f.docID(),
			Position:     protocol.Position{Line: 3, Character: 1},
		},
	})
	require.NoError(t, err)

	items := res.([]protocol.CompletionItem)
	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Label
	}
	assert.Equal(t, []string{"勇者", "魔女", "始まりの村"}, labels)
}

func TestDefinition(t *testing.T) {
	f := newFixture(t, false)
	f.open(t, nil, "魔女は笑った。")

	res, err := f.handler.TextDocumentDefinition(nil, &protocol.DefinitionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: f.docID(),
			Position:     protocol.Position{Line: 0, Character: 1},
		},
	})
	require.NoError(t, err)

	locs := res.([]protocol.Location)
	require.Len(t, locs, 1)
	assert.Equal(t, protocol.DocumentUri(project.PathToURI(filepath.Join(f.root, "characters", "witch.yaml"))), locs[0].URI)
}

func TestCodeLens(t *testing.T) {
	f := newFixture(t, false)
	f.open(t, nil, "魔女は笑った。\n勇者と魔女と坊や。")

	lenses, err := f.handler.TextDocumentCodeLens(nil, &protocol.CodeLensParams{TextDocument: f.docID()})
	require.NoError(t, err)

	require.Len(t, lenses, 3)
	assert.Equal(t, "4 entity mentions (2 distinct)", lenses[0].Command.Title)
	assert.Equal(t, "魔女: 2 mentions", lenses[1].Command.Title)
	assert.Equal(t, protocol.UInteger(0), lenses[1].Range.Start.Line)
	assert.Equal(t, "勇者: 2 mentions", lenses[2].Command.Title)
	assert.Equal(t, protocol.UInteger(1), lenses[2].Range.Start.Line)
}

func TestPublishDiagnostics(t *testing.T) {
	f := newFixture(t, true)

	published := make(chan protocol.PublishDiagnosticsParams, 4)
	ctx := &glsp.Context{Notify: func(method string, params any) {
		if method == protocol.ServerTextDocumentPublishDiagnostics {
			published <- params.(protocol.PublishDiagnosticsParams)
		}
	}}

	f.open(t, ctx, "---\ncharacters: [hero, ghost]\n---\n勇者が来た。")

	var got protocol.PublishDiagnosticsParams
	select {
	case got = <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("no diagnostics published")
	}
	assert.Equal(t, protocol.DocumentUri(f.docURI), got.URI)
	require.Len(t, got.Diagnostics, 1)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *got.Diagnostics[0].Severity)
	assert.Equal(t, protocol.UInteger(1), got.Diagnostics[0].Range.Start.Line)

	require.NoError(t, f.handler.TextDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{TextDocument: f.docID()}))
	select {
	case got = <-published:
		assert.Empty(t, got.Diagnostics, "close clears markers")
	case <-time.After(2 * time.Second):
		t.Fatal("close did not clear diagnostics")
	}

	require.NoError(t, f.handler.Shutdown(ctx))
}

func TestExecuteCommand(t *testing.T) {
	f := newFixture(t, false)
	f.open(t, nil, "勇者")

	// warm the caches
	_, err := f.handler.TextDocumentCodeLens(nil, &protocol.CodeLensParams{TextDocument: f.docID()})
	require.NoError(t, err)
	_, cached := f.handler.contexts.Cached(f.root)
	require.True(t, cached)

	_, err = f.handler.WorkspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{Command: CommandClearCache})
	require.NoError(t, err)
	_, cached = f.handler.contexts.Cached(f.root)
	assert.False(t, cached)

	_, err = f.handler.WorkspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{Command: "storyline/nope"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"http://localhost", true},
		{"https://localhost:8443", true},
		{"http://127.0.0.1:7870", true},
		{"http://[::1]:3000", true},
		{"HTTP://LOCALHOST:5173", true},
		{"https://evil.example", false},
		{"http://localhost.evil.example", false},
		{"http://127.0.0.1.evil.example", false},
		{"https://localhostattacker.com", false},
		{"http://localhost:5173.evil.example", false},
		{"http://evil.example@localhost:5173", false},
		{"https://127.0.0.1:7870", false},
		{"null", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, originAllowed(tt.origin, DefaultAllowedOrigins))
		})
	}

	assert.True(t, originAllowed("https://editor.example", []string{"*"}))
	assert.True(t, originAllowed("https://editor.example", []string{"https://editor.example"}))
	assert.False(t, originAllowed("https://editor.example:8443", []string{"https://editor.example"}))
}

func TestOriginChecker_EmptyOrigin(t *testing.T) {
	check := originChecker(DefaultAllowedOrigins, zap.NewNop().Sugar())

	tests := []struct {
		remote string
		origin string
		want   bool
	}{
		{"127.0.0.1:50000", "", true},
		{"[::1]:50000", "", true},
		{"192.168.1.20:50000", "", false},
		{"not-an-address", "", false},
		{"192.168.1.20:50000", "http://localhost:5173", true},
		{"127.0.0.1:50000", "http://localhost.evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.remote+" "+tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/lsp", nil)
			r.RemoteAddr = tt.remote
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(r))
		})
	}
}
