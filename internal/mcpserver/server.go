// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the tag engine to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/search"
	"github.com/starford/logtags/internal/store"
	"github.com/starford/logtags/internal/tagservice"
)

const contractURI = "logtags://hashtag-format"

// Server wraps the MCP server with tag tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *tagservice.Service
	user string
}

// New creates a new MCP server with all tag tools registered. Writes are
// attributed to user.
func New(svc *tagservice.Service, user string) *Server {
	s := &Server{svc: svc, user: user}

	s.mcp = server.NewMCPServer(
		"logtags",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_tags",
		mcp.WithDescription("Search tags by name and description. Queries of three or more "+
			"characters match anywhere in the text; an empty query lists recent tags."),
		mcp.WithString("query", mcp.Description("Search text")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.searchTags)

	s.mcp.AddTool(mcp.NewTool("get_tag",
		mcp.WithDescription("Fetch one tag by id or by exact name."),
		mcp.WithString("id", mcp.Description("Tag id")),
		mcp.WithString("name", mcp.Description("Exact tag name, used when id is empty")),
	), s.getTag)

	s.mcp.AddTool(mcp.NewTool("create_tag",
		mcp.WithDescription("Create a tag. Hashtags in the description link it to other tags "+
			"and create missing ones. Read get_hashtag_contract first."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Unique tag name")),
		mcp.WithString("description", mcp.Description("Free text with #hashtags or #{multi word} references")),
	), s.createTag)

	s.mcp.AddTool(mcp.NewTool("update_tag",
		mcp.WithDescription("Change a tag's name and/or description. Records a revision and "+
			"replaces its hashtag links."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Tag id")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
	), s.updateTag)

	s.mcp.AddTool(mcp.NewTool("get_tag_history",
		mcp.WithDescription("List every revision of a tag, oldest first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Tag id")),
	), s.getTagHistory)

	s.mcp.AddTool(mcp.NewTool("get_tag_associations",
		mcp.WithDescription("List the tags a tag links to."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Tag id")),
		mcp.WithString("sort", mcp.Description("order (default) or recent"), mcp.Enum("order", "recent")),
	), s.getTagAssociations)

	s.mcp.AddTool(mcp.NewTool("get_hashtag_contract",
		mcp.WithDescription("Returns the hashtag syntax and linking rules. "+
			"Call this before creating or updating tags."),
	), s.getHashtagContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Hashtag Contract",
			mcp.WithResourceDescription("Hashtag syntax and linking rules for tag descriptions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a service error into a readable tool error.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("tag not found")
	case errors.Is(err, apperr.ErrDuplicateName):
		return mcp.NewToolResultError("a tag with this name already exists")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func (s *Server) searchTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.svc.SearchTags(ctx, search.Query{
		Text:   req.GetString("query", ""),
		Limit:  req.GetInt("limit", 0),
		Offset: req.GetInt("offset", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(page)
}

func (s *Server) getTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	name := req.GetString("name", "")

	var (
		tag *models.Tag
		err error
	)
	switch {
	case id != "":
		tag, err = s.svc.GetTagByID(ctx, id)
	case name != "":
		tag, err = s.svc.GetTagByName(ctx, name)
	default:
		return mcp.NewToolResultError("id or name is required"), nil
	}
	if err != nil {
		return toolError(err), nil
	}
	if tag == nil {
		return toolError(apperr.ErrNotFound), nil
	}
	return jsonResult(tag)
}

func (s *Server) createTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tag, err := s.svc.CreateTag(ctx, tagservice.CreateTagInput{
		Name:        name,
		Description: req.GetString("description", ""),
		CreatedBy:   s.user,
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tag)
}

func (s *Server) updateTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var patch tagservice.TagPatch
	args := req.GetArguments()
	if v, ok := args["name"].(string); ok {
		patch.Name = &v
	}
	if v, ok := args["description"].(string); ok {
		patch.Description = &v
	}
	tag, err := s.svc.UpdateTag(ctx, id, patch, s.user)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tag)
}

func (s *Server) getTagHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	revs, err := s.svc.ListTagRevisions(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	if len(revs) == 0 {
		return mcp.NewToolResultText("no revisions found"), nil
	}
	return jsonResult(revs)
}

func (s *Server) getTagAssociations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	assoc, err := s.svc.GetTagAssociations(ctx, id, store.AssociationSort(req.GetString("sort", "")))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(assoc)
}

func (s *Server) getHashtagContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(HashtagContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     HashtagContract,
		},
	}, nil
}
