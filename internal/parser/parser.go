// Package parser extracts hashtags from free text and parses Markdown tag files.
package parser

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// #{multi word name}
	bracedTagRe = regexp.MustCompile(`#\{([^}]*)\}`)
	// #name: a maximal run of characters that are neither whitespace nor braces.
	bareTagRe = regexp.MustCompile(`#([^\s\p{Z}{}]+)`)
)

type hashtagMatch struct {
	offset int
	name   string
}

// Hashtags returns the unique tag names referenced in text, ordered by their
// first appearance. Both the #{name} and #name forms are recognised.
func Hashtags(text string) []string {
	var pool []hashtagMatch
	for _, m := range bracedTagRe.FindAllStringSubmatchIndex(text, -1) {
		pool = append(pool, hashtagMatch{offset: m[0], name: strings.TrimSpace(text[m[2]:m[3]])})
	}
	for _, m := range bareTagRe.FindAllStringSubmatchIndex(text, -1) {
		pool = append(pool, hashtagMatch{offset: m[0], name: text[m[2]:m[3]]})
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].offset < pool[j].offset })

	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))
	for _, m := range pool {
		if m.name == "" {
			continue
		}
		if _, dup := seen[m.name]; dup {
			continue
		}
		seen[m.name] = struct{}{}
		out = append(out, m.name)
	}
	return out
}

// Result holds the output of parsing a Markdown tag file.
type Result struct {
	Frontmatter map[string]interface{}
	Name        string
	Description string
	Metadata    map[string]interface{}
	Hashtags    []string
}

// Parse splits a tag file into frontmatter and body. The body becomes the tag
// description; the name comes from frontmatter "name" or the first H1 heading.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	name, body := deriveName(fm, body)
	description := strings.TrimSpace(body)

	return &Result{
		Frontmatter: fm,
		Name:        name,
		Description: description,
		Metadata:    extractMetadata(fm),
		Hashtags:    Hashtags(description),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter: everything is body.
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), nil
	}

	return fm, body, nil
}

// extractMetadata returns the frontmatter "metadata" mapping, or nil.
func extractMetadata(fm map[string]interface{}) map[string]interface{} {
	if fm == nil {
		return nil
	}
	if m, ok := fm["metadata"].(map[string]interface{}); ok {
		return m
	}
	return nil
}

// deriveName returns the frontmatter "name" if present. Otherwise the first H1
// heading is used and removed from the body.
func deriveName(fm map[string]interface{}, body string) (string, string) {
	if fm != nil {
		if n, ok := fm["name"].(string); ok && strings.TrimSpace(n) != "" {
			return strings.TrimSpace(n), body
		}
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			rest := append(lines[:i:i], lines[i+1:]...)
			return strings.TrimSpace(trimmed[2:]), strings.Join(rest, "\n")
		}
	}
	return "", body
}
