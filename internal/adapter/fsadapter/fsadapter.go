package fsadapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/config"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

const (
	ExtMP3  = ".mp3"
	ExtPart = ".part"

	linksReportSuffix = "_mp3_links_"
	linksReportExt    = ".txt"

	dirPerm  = 0o755
	filePerm = 0o644
)

// FeedDescription is the optional front matter of the description file in a feed folder.
//
//	---
//	album: Morning show
//	enabled: true
//	max_mp3_links: 5
//	---
//	Free text rendered as HTML.
type FeedDescription struct {
	Album       string `yaml:"album"`
	Enabled     *bool  `yaml:"enabled"`
	MaxMP3Links *int   `yaml:"max_mp3_links"`
	HTML        string `yaml:"-"`
}

func (d *FeedDescription) IsEnabled() bool {
	return d == nil || d.Enabled == nil || *d.Enabled
}

type fsAdapter struct {
	fs  afero.Fs
	cfg *config.FSAdapterConfig
	md  goldmark.Markdown

	log *slog.Logger
}

func NewFSAdapter(cfg *config.FSAdapterConfig, log *slog.Logger) (*fsAdapter, error) {
	return NewFSAdapterWithFS(afero.NewOsFs(), cfg, log)
}

func NewFSAdapterWithFS(fs afero.Fs, cfg *config.FSAdapterConfig, log *slog.Logger) (*fsAdapter, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work dir is not set")
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			&frontmatter.Extender{},
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &fsAdapter{
		fs:  fs,
		cfg: cfg,
		md:  md,
		log: log.With(slog.String("item", "FSAdapter")),
	}, nil
}

func (a *fsAdapter) Path(folder, name string) string {
	return filepath.Join(a.cfg.WorkDir, folder, name)
}

func (a *fsAdapter) EnsureFolder(folder string) error {
	if err := checkName(folder); err != nil {
		return err
	}

	path := a.Path(folder, "")
	if err := a.fs.MkdirAll(path, dirPerm); err != nil {
		return common.NewFilesystemError("create folder", path, err)
	}

	return nil
}

// ListMP3 returns the sorted names of the .mp3 files directly inside folder.
// A missing folder has no files.
func (a *fsAdapter) ListMP3(folder string) ([]string, error) {
	path := a.Path(folder, "")

	entries, err := afero.ReadDir(a.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, common.NewFilesystemError("list folder", path, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsMP3(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}

// CreatePart opens <name>.part for writing. CommitPart or DiscardPart must follow.
func (a *fsAdapter) CreatePart(folder, name string) (io.WriteCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	path := a.Path(folder, name+ExtPart)
	f, err := a.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, common.NewFilesystemError("create file", path, err)
	}

	return f, nil
}

func (a *fsAdapter) CommitPart(folder, name string) error {
	from, to := a.Path(folder, name+ExtPart), a.Path(folder, name)
	if err := a.fs.Rename(from, to); err != nil {
		return common.NewFilesystemError("rename file", from, err)
	}

	return nil
}

func (a *fsAdapter) DiscardPart(folder, name string) error {
	return a.remove(a.Path(folder, name+ExtPart))
}

// Remove deletes an .mp3 file of folder. Other files are refused.
func (a *fsAdapter) Remove(folder, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if !IsMP3(name) {
		return fmt.Errorf("refuse to remove %s: not an %s file", name, ExtMP3)
	}

	return a.remove(a.Path(folder, name))
}

func (a *fsAdapter) remove(path string) error {
	if err := a.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.NewFilesystemError("remove file", path, err)
	}

	return nil
}

// WriteLinksReport stores the selected links of an extraction-only run and returns the report file name.
func (a *fsAdapter) WriteLinksReport(folder string, links []string, now time.Time) (string, error) {
	name := fmt.Sprintf("%s%s%d%s", folder, linksReportSuffix, now.Unix(), linksReportExt)
	path := a.Path(folder, name)

	var buf bytes.Buffer
	for _, link := range links {
		buf.WriteString(link)
		buf.WriteByte('\n')
	}

	if err := afero.WriteFile(a.fs, path, buf.Bytes(), filePerm); err != nil {
		return "", common.NewFilesystemError("write links report", path, err)
	}

	return name, nil
}

// FeedDescription reads the description file of folder. It returns nil when there is none.
func (a *fsAdapter) FeedDescription(folder string) (*FeedDescription, error) {
	if a.cfg.DescFileName == "" {
		return nil, nil
	}

	path := a.Path(folder, a.cfg.DescFileName)
	content, err := afero.ReadFile(a.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, common.NewFilesystemError("read description", path, err)
	}

	var buf bytes.Buffer
	ctx := parser.NewContext()
	if err := a.md.Convert(content, &buf, parser.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("cannot convert markdown %s: %w", path, err)
	}

	desc := &FeedDescription{}
	if fm := frontmatter.Get(ctx); fm != nil {
		if err := fm.Decode(desc); err != nil {
			return nil, fmt.Errorf("cannot decode frontmatter %s: %w", path, err)
		}
	}
	desc.HTML = strings.TrimSpace(buf.String())

	return desc, nil
}

func IsMP3(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ExtMP3)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid name: %q", name)
	}

	return nil
}
