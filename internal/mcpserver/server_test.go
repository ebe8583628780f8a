package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/search"
	"github.com/starford/logtags/internal/tagservice"
	"github.com/starford/logtags/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db := testutil.TestDB(t)
	svc := tagservice.New(db, testutil.TestEngine(t, db), tagservice.WithLogger(testutil.Logger()))
	return New(svc, "mcp")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_tags":
		result, err = srv.searchTags(ctx, req)
	case "get_tag":
		result, err = srv.getTag(ctx, req)
	case "create_tag":
		result, err = srv.createTag(ctx, req)
	case "update_tag":
		result, err = srv.updateTag(ctx, req)
	case "get_tag_history":
		result, err = srv.getTagHistory(ctx, req)
	case "get_tag_associations":
		result, err = srv.getTagAssociations(ctx, req)
	case "get_hashtag_contract":
		result, err = srv.getHashtagContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeTag(t *testing.T, r *mcp.CallToolResult) models.Tag {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var tag models.Tag
	if err := json.Unmarshal([]byte(resultText(r)), &tag); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return tag
}

func TestCreateAndGetTag(t *testing.T) {
	srv := testServer(t)

	created := decodeTag(t, callTool(t, srv, "create_tag", map[string]interface{}{
		"name":        "hiking",
		"description": "trails and #{trail running}",
	}))
	if created.CreatedBy != "mcp" {
		t.Errorf("created_by = %q, want mcp", created.CreatedBy)
	}

	got := decodeTag(t, callTool(t, srv, "get_tag", map[string]interface{}{"id": created.ID}))
	if got.Name != "hiking" {
		t.Errorf("name = %q", got.Name)
	}

	byName := decodeTag(t, callTool(t, srv, "get_tag", map[string]interface{}{"name": "trail running"}))
	if byName.Description != "" {
		t.Errorf("implicit tag description = %q, want empty", byName.Description)
	}
}

func TestCreateTagDuplicate(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_tag", map[string]interface{}{"name": "dup"})

	r := callTool(t, srv, "create_tag", map[string]interface{}{"name": "dup"})
	if !r.IsError {
		t.Fatal("expected error for duplicate name")
	}
}

func TestGetTagMissing(t *testing.T) {
	srv := testServer(t)

	if r := callTool(t, srv, "get_tag", map[string]interface{}{"id": "nope"}); !r.IsError {
		t.Error("expected error for missing tag")
	}
	if r := callTool(t, srv, "get_tag", map[string]interface{}{}); !r.IsError {
		t.Error("expected error without id or name")
	}
}

func TestUpdateTagAndHistory(t *testing.T) {
	srv := testServer(t)
	created := decodeTag(t, callTool(t, srv, "create_tag", map[string]interface{}{"name": "a"}))

	updated := decodeTag(t, callTool(t, srv, "update_tag", map[string]interface{}{
		"id":          created.ID,
		"description": "links #b",
	}))
	if updated.Name != "a" || updated.Description != "links #b" {
		t.Errorf("updated = %+v", updated)
	}

	r := callTool(t, srv, "update_tag", map[string]interface{}{"id": created.ID})
	if !r.IsError {
		t.Error("expected error for update without fields")
	}

	r = callTool(t, srv, "get_tag_history", map[string]interface{}{"id": created.ID})
	var revs []models.TagRevision
	if err := json.Unmarshal([]byte(resultText(r)), &revs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(revs) != 2 || revs[1].RevisionNumber != 1 {
		t.Errorf("revisions = %+v", revs)
	}

	r = callTool(t, srv, "get_tag_associations", map[string]interface{}{"id": created.ID})
	var assoc []models.AssociatedTag
	if err := json.Unmarshal([]byte(resultText(r)), &assoc); err != nil {
		t.Fatalf("decode associations: %v", err)
	}
	if len(assoc) != 1 || assoc[0].Tag.Name != "b" {
		t.Errorf("associations = %+v", assoc)
	}
}

func TestSearchTags(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_tag", map[string]interface{}{"name": "sea kayaking"})
	_ = callTool(t, srv, "create_tag", map[string]interface{}{"name": "baking"})

	r := callTool(t, srv, "search_tags", map[string]interface{}{"query": "kayak"})
	var page search.Page
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "sea kayaking" {
		t.Errorf("page = %+v", page)
	}
}

func TestGetTagHistoryEmpty(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_tag_history", map[string]interface{}{"id": "ghost"})
	if resultText(r) != "no revisions found" {
		t.Errorf("history = %q", resultText(r))
	}
}

func TestHashtagContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_hashtag_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "#{multi word name}") {
		t.Error("contract missing braced form")
	}
}
