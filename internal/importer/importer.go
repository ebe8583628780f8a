// Package importer keeps tags in step with a directory of Markdown tag files.
//
// Each *.md file describes one tag: frontmatter "name" (or the first H1, or
// the file name) and "metadata", with the body as description. Changes flow
// through the tag service, so revisions and hashtag reconciliation apply to
// imported tags exactly as they do to API writes.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/logtags/internal/apperr"
	"github.com/starford/logtags/internal/models"
	"github.com/starford/logtags/internal/parser"
	"github.com/starford/logtags/internal/storage"
	"github.com/starford/logtags/internal/tagservice"
)

// Sources tracks which tag each imported file produced.
type Sources interface {
	AllSources(ctx context.Context) (map[string]models.TagSource, error)
	UpsertSource(ctx context.Context, s models.TagSource) error
	DeleteSource(ctx context.Context, path string) error
}

// Importer applies tag files to the tag service.
type Importer struct {
	svc     *tagservice.Service
	sources Sources
	files   storage.Provider
	user    string
	logger  *slog.Logger
}

// New creates an Importer. Writes are attributed to user.
func New(svc *tagservice.Service, sources Sources, files storage.Provider, user string, logger *slog.Logger) *Importer {
	return &Importer{svc: svc, sources: sources, files: files, user: user, logger: logger}
}

// Stats summarises one Sync pass.
type Stats struct {
	Created   int
	Updated   int
	Unchanged int
	Forgotten int
	Failed    int
}

// Sync walks the tag directory and brings tags up to date:
//   - new or changed files are parsed and applied through the service
//   - files removed from disk are forgotten; their tags are kept
func (im *Importer) Sync(ctx context.Context) (Stats, error) {
	var st Stats

	metas, err := im.files.List("")
	if err != nil {
		return st, err
	}
	known, err := im.sources.AllSources(ctx)
	if err != nil {
		return st, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		prev, seen := known[m.Path]
		if seen && prev.Checksum == m.Checksum {
			st.Unchanged++
			continue
		}

		created, err := im.importFile(ctx, m, prev.TagID)
		if err != nil {
			st.Failed++
			im.logger.Warn("import: file failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if created {
			st.Created++
		} else {
			st.Updated++
		}
		im.logger.Debug("import: applied", slog.String("path", m.Path), slog.Bool("created", created))
	}

	for p := range known {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := im.sources.DeleteSource(ctx, p); err != nil {
			st.Failed++
			im.logger.Warn("import: forget failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		st.Forgotten++
		im.logger.Debug("import: forgot removed file", slog.String("path", p))
	}

	im.logger.Info("import: sync done",
		slog.Int("created", st.Created),
		slog.Int("updated", st.Updated),
		slog.Int("unchanged", st.Unchanged),
		slog.Int("forgotten", st.Forgotten),
		slog.Int("failed", st.Failed),
	)
	return st, nil
}

// importFile applies one file. The target tag is, in order: the tag this
// path produced before, an existing tag with the same name, or a new tag.
func (im *Importer) importFile(ctx context.Context, m models.FileMetadata, knownTagID string) (bool, error) {
	data, err := im.files.Read(m.Path)
	if err != nil {
		return false, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return false, err
	}
	name := res.Name
	if name == "" {
		name = nameFromPath(m.Path)
	}
	meta := models.Metadata(res.Metadata)
	if meta == nil {
		meta = models.Metadata{}
	}

	var tag *models.Tag
	if knownTagID != "" {
		if tag, err = im.svc.GetTagByID(ctx, knownTagID); err != nil {
			return false, err
		}
	}
	if tag == nil {
		if tag, err = im.svc.GetTagByName(ctx, strings.TrimSpace(name)); err != nil {
			return false, err
		}
	}

	created := tag == nil
	if created {
		tag, err = im.svc.CreateTag(ctx, tagservice.CreateTagInput{
			Name:        name,
			Description: res.Description,
			Metadata:    meta,
			CreatedBy:   im.user,
		})
	} else {
		tag, err = im.svc.UpdateTag(ctx, tag.ID, tagservice.TagPatch{
			Name:        &name,
			Description: &res.Description,
			Metadata:    meta,
		}, im.user)
	}
	if errors.Is(err, apperr.ErrDuplicateName) {
		return false, fmt.Errorf("name %q is taken by another tag: %w", name, err)
	}
	if err != nil {
		return false, err
	}

	return created, im.sources.UpsertSource(ctx, models.TagSource{
		Path:     m.Path,
		Checksum: m.Checksum,
		TagID:    tag.ID,
	})
}

// nameFromPath turns "outdoors/sea-kayaking.md" into "sea-kayaking".
func nameFromPath(p string) string {
	return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
}
