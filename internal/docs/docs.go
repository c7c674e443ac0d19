// Package docs serves the user documentation bundled into the binary.
package docs

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

//go:embed content
var content embed.FS

var ErrNotFound = errors.New("article not found")

// sectionOrder fixes the order and titles of the sections.
var sectionOrder = []struct {
	id, title string
}{
	{"getting-started", "Getting started"},
	{"payment", "Payment"},
	{"access", "Access"},
	{"troubleshooting", "Troubleshooting"},
	{"api", "API and integrations"},
}

type Article struct {
	Section  string `json:"section"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Markdown string `json:"markdown,omitempty"`
}

type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Articles []Article `json:"articles"`
}

// Ref points at an article without its body.
type Ref struct {
	Section      string `json:"section"`
	SectionTitle string `json:"section_title"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
}

// Library is the parsed documentation tree.
type Library struct {
	sections []Section
	md       goldmark.Markdown
}

// Load parses the embedded documentation.
func Load() (*Library, error) {
	return load(content, "content")
}

func load(fsys fs.FS, root string) (*Library, error) {
	lib := &Library{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
		),
	}
	for _, s := range sectionOrder {
		entries, err := fs.ReadDir(fsys, path.Join(root, s.id))
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", s.id, err)
		}
		sec := Section{ID: s.id, Title: s.title}
		for _, e := range entries {
			if e.IsDir() || path.Ext(e.Name()) != ".md" {
				continue
			}
			raw, err := fs.ReadFile(fsys, path.Join(root, s.id, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("read article %s: %w", e.Name(), err)
			}
			sec.Articles = append(sec.Articles, parseArticle(s.id, e.Name(), string(raw)))
		}
		sort.Slice(sec.Articles, func(i, j int) bool { return sec.Articles[i].Slug < sec.Articles[j].Slug })
		lib.sections = append(lib.sections, sec)
	}
	return lib, nil
}

// parseArticle takes the title from the first heading. "01-how-to-pay.md"
// becomes slug "01-how-to-pay".
func parseArticle(section, name, raw string) Article {
	a := Article{Section: section, Slug: strings.TrimSuffix(name, ".md"), Markdown: raw}
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "# ") {
			a.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			break
		}
	}
	if a.Title == "" {
		a.Title = a.Slug
	}
	return a
}

// Sections lists the sections with article titles only.
func (l *Library) Sections() []Section {
	out := make([]Section, len(l.sections))
	for i, s := range l.sections {
		out[i] = Section{ID: s.ID, Title: s.Title, Articles: make([]Article, len(s.Articles))}
		for j, a := range s.Articles {
			out[i].Articles[j] = Article{Section: a.Section, Slug: a.Slug, Title: a.Title}
		}
	}
	return out
}

func (l *Library) Article(section, slug string) (Article, error) {
	for _, s := range l.sections {
		if s.ID != section {
			continue
		}
		for _, a := range s.Articles {
			if a.Slug == slug {
				return a, nil
			}
		}
	}
	return Article{}, ErrNotFound
}

// Render converts an article to HTML. Raw HTML in the source is escaped.
func (l *Library) Render(a Article) (string, error) {
	var buf bytes.Buffer
	if err := l.md.Convert([]byte(a.Markdown), &buf); err != nil {
		return "", fmt.Errorf("render %s/%s: %w", a.Section, a.Slug, err)
	}
	return buf.String(), nil
}

// Search matches term against titles and bodies, ignoring case.
func (l *Library) Search(term string) []Ref {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []Ref{}
	}
	out := []Ref{}
	for _, s := range l.sections {
		for _, a := range s.Articles {
			if strings.Contains(strings.ToLower(a.Title), term) || strings.Contains(strings.ToLower(a.Markdown), term) {
				out = append(out, Ref{Section: s.ID, SectionTitle: s.Title, Slug: a.Slug, Title: a.Title})
			}
		}
	}
	return out
}
