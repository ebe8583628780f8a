package tagservice

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
)

// MaxNameLength is the longest tag name accepted, in runes.
const MaxNameLength = 255

// CreateTagInput describes a new tag.
type CreateTagInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Metadata    models.Metadata `json:"metadata"`
	CreatedBy   string          `json:"created_by"`
}

// Validate checks the input after the name has been trimmed.
func (in *CreateTagInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	return invalid(validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, MaxNameLength)),
	))
}

// TagPatch is a partial update. A nil field is left unchanged; a non-nil
// Metadata replaces the whole map.
type TagPatch struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *TagPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Metadata == nil
}

// Validate checks the fields that are present.
func (p *TagPatch) Validate() error {
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		p.Name = &trimmed
	}
	return invalid(validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.RuneLength(1, MaxNameLength)),
	))
}

// apply copies the present fields onto t.
func (p *TagPatch) apply(t *models.Tag) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Metadata != nil {
		t.Metadata = p.Metadata
	}
}

// validName reports whether an extracted hashtag can become a tag name.
func validName(name string) bool {
	return validation.Validate(name, validation.Required, validation.RuneLength(1, MaxNameLength)) == nil
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
}
