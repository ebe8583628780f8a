package search

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	trigramFilterName   = "trigram"
	trigramAnalyzerName = "trigram"
	lowerAnalyzerName   = "lower_keyword"
)

// Fields holding the whole lowercased value of name and description.
const (
	nameValueField        = "name_value"
	descriptionValueField = "description_value"
)

// buildIndexMapping creates the mapping for tag documents.
//
// name and description are indexed twice. The trigram fields keep the value
// intact with the single tokenizer (spaces and CJK included), lowercase it and
// cut it into 3-rune grams; ngram tokens all share one position, so requiring
// every gram only narrows candidates. The *_value fields hold the lowercased
// value as one term, and a regexp over that term decides the substring match.
func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	if err := indexMapping.AddCustomTokenFilter(trigramFilterName, map[string]interface{}{
		"type": ngram.Name,
		"min":  3.0,
		"max":  3.0,
	}); err != nil {
		return nil, fmt.Errorf("add trigram filter: %w", err)
	}
	if err := indexMapping.AddCustomAnalyzer(trigramAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name, trigramFilterName},
	}); err != nil {
		return nil, fmt.Errorf("add trigram analyzer: %w", err)
	}
	if err := indexMapping.AddCustomAnalyzer(lowerAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("add lower keyword analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = trigramAnalyzerName

	docMapping := bleve.NewDocumentMapping()

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = trigramAnalyzerName
	nameFieldMapping.Store = false
	nameFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = trigramAnalyzerName
	descFieldMapping.Store = false
	descFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("description", descFieldMapping)

	for _, field := range []string{nameValueField, descriptionValueField} {
		valueFieldMapping := bleve.NewTextFieldMapping()
		valueFieldMapping.Analyzer = lowerAnalyzerName
		valueFieldMapping.Store = false
		valueFieldMapping.IncludeInAll = false
		valueFieldMapping.IncludeTermVectors = false
		docMapping.AddFieldMappingsAt(field, valueFieldMapping)
	}

	// Unix microseconds, for recency sorting.
	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping, nil
}
