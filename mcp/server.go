// Package mcp exposes a storyline project to Model Context Protocol clients:
// entities as storyline:// resources, and detection and diagnostics as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/teranos/storyline/diagnostics"
	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/project"
	"github.com/teranos/storyline/textdoc"
	"github.com/teranos/storyline/version"
)

// ServerName is reported to MCP clients.
const ServerName = "storyline"

const jsonMIME = "application/json"

// Config wires a Server to the shared project services.
type Config struct {
	// Root is the project served when a tool call names no file (default
	// the detector's fallback root)
	Root string

	Detector    *project.Detector
	Contexts    *project.ContextManager
	Diagnostics *diagnostics.Generator

	Logger *zap.SugaredLogger
}

// Server is an MCP server over one storyline project.
type Server struct {
	root        string
	detector    *project.Detector
	contexts    *project.ContextManager
	diagnostics *diagnostics.Generator
	logger      *zap.SugaredLogger
	server      *server.MCPServer
}

// NewServer creates the MCP server and registers its resources and tools.
func NewServer(cfg Config) *Server {
	s := &Server{
		root:        cfg.Root,
		detector:    cfg.Detector,
		contexts:    cfg.Contexts,
		diagnostics: cfg.Diagnostics,
		logger:      logger.OrGlobal(cfg.Logger, "mcp"),
	}
	if s.root == "" && s.detector != nil {
		s.root = s.detector.FallbackRoot()
	}
	if abs, err := filepath.Abs(s.root); err == nil {
		s.root = abs
	}

	s.server = server.NewMCPServer(
		ServerName,
		version.Get().Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)
	s.registerResources()
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.server
}

// Root returns the default project root.
func (s *Server) Root() string {
	return s.root
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Infow("Serving MCP over stdio", logger.FieldProjectRoot, s.root)
	return server.ServeStdio(s.server)
}

func (s *Server) registerResources() {
	s.server.AddResource(mcpgo.NewResource(
		ResourceRef{Type: ResourceProject}.String(),
		"Project",
		mcpgo.WithResourceDescription("Project name, root and entity counts per kind"),
		mcpgo.WithMIMEType(jsonMIME),
	), s.ReadResource)

	s.server.AddResource(mcpgo.NewResource(
		ResourceRef{Type: ResourceEntities}.String(),
		"All entities",
		mcpgo.WithResourceDescription("Every character, setting, foreshadowing and timeline entity"),
		mcpgo.WithMIMEType(jsonMIME),
	), s.ReadResource)

	for _, k := range entity.Kinds {
		typ := ResourceType(k)
		s.server.AddResource(mcpgo.NewResource(
			ResourceRef{Type: typ}.String(),
			fmt.Sprintf("All %s entities", k),
			mcpgo.WithResourceDescription(fmt.Sprintf("Every %s entity of the project", k)),
			mcpgo.WithMIMEType(jsonMIME),
		), s.ReadResource)

		s.server.AddResourceTemplate(mcpgo.NewResourceTemplate(
			ResourceRef{Type: typ}.String()+"/{id}",
			fmt.Sprintf("%s entity", k),
			mcpgo.WithTemplateDescription(fmt.Sprintf("One %s entity by id", k)),
			mcpgo.WithTemplateMIMEType(jsonMIME),
		), s.ReadResource)
	}
}

func (s *Server) registerTools() {
	detectTool := mcpgo.NewTool("detect_entities",
		mcpgo.WithDescription("Find every entity mention in a passage of manuscript text"),
		mcpgo.WithString("text",
			mcpgo.Required(),
			mcpgo.Description("Manuscript text, optionally starting with a frontmatter block"),
		),
		mcpgo.WithString("path",
			mcpgo.Description("File whose project supplies the entities (default: the served project)"),
		),
	)
	s.server.AddTool(detectTool, s.handleDetectEntities)

	diagnoseTool := mcpgo.NewTool("diagnose",
		mcpgo.WithDescription("Run every diagnostic source over a manuscript file"),
		mcpgo.WithString("path",
			mcpgo.Required(),
			mcpgo.Description("File path, absolute or relative to the project root"),
		),
	)
	s.server.AddTool(diagnoseTool, s.handleDiagnose)

	resolveTool := mcpgo.NewTool("resolve_entity",
		mcpgo.WithDescription("Resolve the entity mentioned at a position in a passage"),
		mcpgo.WithString("text",
			mcpgo.Required(),
			mcpgo.Description("Manuscript text"),
		),
		mcpgo.WithNumber("line",
			mcpgo.Required(),
			mcpgo.Description("Line number (zero-based)"),
		),
		mcpgo.WithNumber("character",
			mcpgo.Required(),
			mcpgo.Description("Character offset in UTF-16 code units (zero-based)"),
		),
		mcpgo.WithString("path",
			mcpgo.Description("File whose project supplies the entities (default: the served project)"),
		),
	)
	s.server.AddTool(resolveTool, s.handleResolveEntity)
}

// ReadResource serves every storyline:// resource of the default project.
func (s *Server) ReadResource(ctx context.Context, request mcpgo.ReadResourceRequest) ([]mcpgo.ResourceContents, error) {
	uri := request.Params.URI
	ref, err := ParseResourceURI(uri)
	if err != nil {
		return nil, err
	}

	pc, err := s.contexts.GetContext(ctx, s.root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load project %s", s.root)
	}

	var payload any
	switch ref.Type {
	case ResourceProject:
		payload = projectSummary(pc)
	case ResourceEntities:
		payload = entityPayloads(pc, pc.Index.Entities())
	default:
		kind, _ := ref.Type.Kind()
		if ref.ID == "" {
			payload = entityPayloads(pc, pc.Index.ByKind(kind))
			break
		}
		e, ok := pc.Index.Get(ref.ID)
		if !ok || e.Kind != kind {
			return nil, errors.NewNotFoundError("no %s entity with id %q", kind, ref.ID)
		}
		payload = newEntityPayload(pc, e)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode resource")
	}
	s.logger.Debugw("MCP resource read", logger.FieldURI, uri)
	return []mcpgo.ResourceContents{
		mcpgo.TextResourceContents{URI: uri, MIMEType: jsonMIME, Text: string(data)},
	}, nil
}

func (s *Server) handleDetectEntities(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	pc, err := s.contextFor(ctx, request.GetString("path", ""))
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to load project: %v", err)), nil
	}

	matches := pc.Detector.DetectAll(text)
	out := make([]mentionPayload, len(matches))
	for i, m := range matches {
		out[i] = mentionPayload{
			ID:            m.Entity.ID,
			Kind:          m.Entity.Kind,
			Text:          m.Text,
			Range:         m.Range,
			InFrontmatter: m.InFrontmatter,
		}
	}
	return jsonResult(out)
}

func (s *Server) handleDiagnose(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if s.diagnostics == nil {
		return mcpgo.NewToolResultError("Diagnostics are not configured"), nil
	}

	abs := s.resolvePath(path)
	content, err := os.ReadFile(abs)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to read %s: %v", path, err)), nil
	}

	root := s.root
	if s.detector != nil {
		root = s.detector.DetectProjectRoot(abs)
	}
	diags := s.diagnostics.Generate(ctx, project.PathToURI(abs), string(content), root)
	s.logger.Debugw("MCP diagnose",
		logger.FieldPath, abs,
		logger.FieldProjectRoot, root,
		logger.FieldCount, len(diags))
	return jsonResult(diags)
}

func (s *Server) handleResolveEntity(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	line, err := request.RequireInt("line")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	character, err := request.RequireInt("character")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	pc, err := s.contextFor(ctx, request.GetString("path", ""))
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to load project: %v", err)), nil
	}

	match, ok := pc.Detector.ResolveAtPosition(text, textdoc.Position{Line: line, Character: character})
	if !ok {
		return mcpgo.NewToolResultText("No entity at position"), nil
	}
	return jsonResult(newEntityPayload(pc, match.Entity))
}

// contextFor loads the project owning path, or the default project.
func (s *Server) contextFor(ctx context.Context, path string) (*project.ProjectContext, error) {
	root := s.root
	if path != "" && s.detector != nil {
		root = s.detector.DetectProjectRoot(s.resolvePath(path))
	}
	return s.contexts.GetContext(ctx, root)
}

func (s *Server) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

type entityPayload struct {
	project.EntityInfo
	DisplayNames []string `json:"displayNames,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`
}

func newEntityPayload(pc *project.ProjectContext, e *entity.DetectableEntity) entityPayload {
	info, ok := pc.Info(e.ID)
	if !ok {
		info = project.EntityInfo{ID: e.ID, Kind: e.Kind, Name: e.DisplayName()}
	}
	return entityPayload{EntityInfo: info, DisplayNames: e.DisplayNames, Aliases: e.Aliases}
}

func entityPayloads(pc *project.ProjectContext, entities []*entity.DetectableEntity) []entityPayload {
	out := make([]entityPayload, len(entities))
	for i, e := range entities {
		out[i] = newEntityPayload(pc, e)
	}
	return out
}

type mentionPayload struct {
	ID            string        `json:"id"`
	Kind          entity.Kind   `json:"kind"`
	Text          string        `json:"text"`
	Range         textdoc.Range `json:"range"`
	InFrontmatter bool          `json:"inFrontmatter,omitempty"`
}

type projectPayload struct {
	Name     string         `json:"name"`
	Root     string         `json:"root"`
	Entities int            `json:"entities"`
	ByKind   map[string]int `json:"byKind"`
	Kinds    []string       `json:"kinds"`
	LoadedAt string         `json:"loadedAt"`
}

func projectSummary(pc *project.ProjectContext) projectPayload {
	p := projectPayload{
		Name:     pc.Name,
		Root:     pc.ProjectRoot,
		Entities: pc.Index.Len(),
		ByKind:   make(map[string]int, len(entity.Kinds)),
		LoadedAt: pc.LoadedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	for _, k := range entity.Kinds {
		if n := len(pc.Index.ByKind(k)); n > 0 {
			p.ByKind[string(k)] = n
			p.Kinds = append(p.Kinds, string(k))
		}
	}
	return p
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}
