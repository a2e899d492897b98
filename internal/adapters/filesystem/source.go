package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/ports"
)

const readmeName = "README.md"

// Source implements ports.DocumentSource over a folder of markdown notes.
// Every .md file is a leaf item identified by its slash separated path
// relative to the root. A folder holding a README.md is a container item
// identified by its own path, with the README as its body. A note's parent
// is the closest enclosing container unless its front matter names one.
type Source struct {
	root     string
	maxChars int
	log      *logger.Logger
}

var _ ports.DocumentSource = (*Source)(nil)

// NewSource creates a source rooted at root
func NewSource(root string, maxChars int, log *logger.Logger) *Source {
	if strings.HasPrefix(root, "~") {
		home, _ := os.UserHomeDir()
		root = filepath.Join(home, root[1:])
	}
	return &Source{root: root, maxChars: maxChars, log: log.With("source", "filesystem")}
}

func (s *Source) Name() string { return "filesystem" }

// Root returns the folder the source reads
func (s *Source) Root() string { return s.root }

// ListAll returns every note and container below the root
func (s *Source) ListAll(ctx context.Context) ([]domain.RawItem, error) {
	return s.scan(ctx, time.Time{})
}

// ListChangedSince returns items whose file changed after since
func (s *Source) ListChangedSince(ctx context.Context, since time.Time) ([]domain.RawItem, error) {
	return s.scan(ctx, since)
}

func (s *Source) scan(ctx context.Context, since time.Time) ([]domain.RawItem, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("failed to read notes root: %w", err)
	}

	var items []domain.RawItem
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn("skipping unreadable path", "path", p, "error", err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		// Skip hidden directories and files
		if p != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		id, ok := s.itemID(p, d)
		if !ok {
			return nil
		}
		file := p
		if d.IsDir() {
			file = filepath.Join(p, readmeName)
		}

		info, err := os.Stat(file)
		if err != nil {
			return nil
		}
		if !since.IsZero() && !info.ModTime().After(since) {
			return nil
		}

		raw, err := s.read(id, file, d.IsDir(), info.ModTime())
		if err != nil {
			s.log.Warn("skipping unparsable note", "id", id, "error", err.Error())
			return nil
		}
		items = append(items, raw)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// itemID maps a walked path to an item id. The root itself, READMEs and
// non-markdown files are not items.
func (s *Source) itemID(p string, d fs.DirEntry) (string, bool) {
	if p == s.root {
		return "", false
	}
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	if d.IsDir() {
		if _, err := os.Stat(filepath.Join(p, readmeName)); err != nil {
			return "", false
		}
		return rel, true
	}
	if d.Name() == readmeName || !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
		return "", false
	}
	return rel, true
}

func (s *Source) read(id, file string, container bool, modTime time.Time) (domain.RawItem, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return domain.RawItem{}, err
	}
	fm, body, err := splitFrontMatter(content)
	if err != nil {
		return domain.RawItem{}, err
	}

	raw := domain.RawItem{
		ID:           id,
		Title:        fm.Title,
		Kind:         domain.KindLeaf,
		Tags:         fm.Tags,
		ParentID:     fm.Parent,
		Body:         body,
		Summary:      fm.Summary,
		RelationIDs:  fm.Relations,
		LastModified: modTime.UTC(),
		URL:          "file://" + filepath.ToSlash(file),
	}
	if container {
		raw.Kind = domain.KindContainer
	}
	if strings.EqualFold(fm.Type, "record") {
		raw.Kind = domain.KindStructuredRecord
	}
	if raw.Title == "" {
		raw.Title = firstHeading(body)
	}
	if raw.Title == "" {
		raw.Title = strings.TrimSuffix(path.Base(id), path.Ext(id))
	}
	if raw.ParentID == "" {
		raw.ParentID = s.enclosingContainer(id)
	}
	if raw.Summary == "" {
		raw.Summary = domain.Summarize(stripHeading(body), domain.SummaryRunes)
	}
	return raw, nil
}

// enclosingContainer returns the id of the closest ancestor folder that
// holds a README.md
func (s *Source) enclosingContainer(id string) string {
	for dir := path.Dir(id); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(dir), readmeName)); err == nil {
			return dir
		}
	}
	return ""
}

// FetchContent returns the note body without its front matter
func (s *Source) FetchContent(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := s.resolve(id)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", id, err)
	}

	_, body, err := splitFrontMatter(content)
	if err != nil {
		s.log.Debug("serving note with broken front matter", "id", id, "error", err.Error())
	}
	body = strings.TrimSpace(body)
	if s.maxChars > 0 {
		if r := []rune(body); len(r) > s.maxChars {
			body = string(r[:s.maxChars])
		}
	}
	return body, nil
}

// resolve maps an id to the file holding its content, refusing ids that
// escape the root
func (s *Source) resolve(id string) (string, error) {
	clean := path.Clean("/" + id)[1:]
	if clean == "" || clean != id {
		return "", &domain.NotFoundError{ID: id}
	}
	p := filepath.Join(s.root, filepath.FromSlash(clean))
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return filepath.Join(p, readmeName), nil
	}
	if !strings.EqualFold(path.Ext(clean), ".md") {
		return "", &domain.NotFoundError{ID: id}
	}
	return p, nil
}

func stripHeading(body string) string {
	if loc := headingRe.FindStringIndex(body); loc != nil {
		return body[:loc[0]] + body[loc[1]:]
	}
	return body
}
