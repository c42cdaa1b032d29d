// Package artifact builds deployment packages and manages them as chain resources.
package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// Entry is one file in a package.
type Entry struct {
	Name string
	Data []byte
	Mode fs.FileMode
}

// ZipPackager builds zip archives. Entries carry a fixed modification time so the
// same inputs always produce the same bytes.
type ZipPackager struct {
	// BaseDir resolves relative file paths given to Build.
	BaseDir string
}

var _ orchestrator.Packager = ZipPackager{}

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Build reads files and archives them under their base names.
func (p ZipPackager) Build(ctx context.Context, files []string) ([]byte, error) {
	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := f
		if !filepath.IsAbs(path) && p.BaseDir != "" {
			path = filepath.Join(p.BaseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		entries = append(entries, Entry{Name: filepath.Base(f), Data: data})
	}
	return Archive(entries)
}

// Archive writes entries into a zip, sorted by name. Duplicate names are an error.
func Archive(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("package has no files")
	}
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("duplicate file %q in package", e.Name)
		}
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: epoch}
		hdr.SetMode(mode)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Capability writes a package to a work directory on create and removes it on delete.
//
// Params:
//   - name: file name without extension (default: the step name)
//   - files: comma-separated paths handed to the packager
//   - code.<file>: inline file contents, added to the packager's zip
type Capability struct {
	packager orchestrator.Packager
	workDir  string
	logger   *slog.Logger
}

// NewCapability creates a package capability writing into workDir. A nil
// packager means a ZipPackager without a base directory.
func NewCapability(packager orchestrator.Packager, workDir string, logger *slog.Logger) *Capability {
	if logger == nil {
		logger = slog.Default()
	}
	if packager == nil {
		packager = ZipPackager{}
	}
	return &Capability{
		packager: packager,
		workDir:  workDir,
		logger:   logger.With("component", "artifact"),
	}
}

// Create builds the package. The external ID is the path of the written file.
// Packager output is written unchanged unless inline code has to be merged into it.
func (c *Capability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	data, files, err := c.build(ctx, req)
	if err != nil {
		return orchestrator.CreateResult{}, fmt.Errorf("packaging %s: %w", req.Step, err)
	}

	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return orchestrator.CreateResult{}, fmt.Errorf("creating work dir: %w", err)
	}
	path := filepath.Join(c.workDir, req.Param("name", req.Step)+".zip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return orchestrator.CreateResult{}, fmt.Errorf("writing package: %w", err)
	}

	sum := sha256.Sum256(data)
	c.logger.Info("package written", "path", path, "bytes", len(data), "files", files)
	return orchestrator.CreateResult{
		ExternalID: path,
		Attributes: map[string]string{
			"path":   path,
			"sha256": hex.EncodeToString(sum[:]),
			"size":   strconv.Itoa(len(data)),
			"files":  strconv.Itoa(files),
		},
	}, nil
}

// build returns the package bytes and the number of files in it.
func (c *Capability) build(ctx context.Context, req orchestrator.CreateRequest) ([]byte, int, error) {
	var inline []Entry
	for k, v := range req.Params {
		if name, ok := strings.CutPrefix(k, "code."); ok {
			inline = append(inline, Entry{Name: name, Data: []byte(v)})
		}
	}

	files := splitList(req.Params["files"])
	if len(files) == 0 {
		data, err := Archive(inline)
		return data, len(inline), err
	}
	built, err := c.packager.Build(ctx, files)
	if err != nil {
		return nil, 0, err
	}
	if len(inline) == 0 {
		return built, len(files), nil
	}

	entries, err := Read(built)
	if err != nil {
		return nil, 0, fmt.Errorf("adding inline code needs a zip package: %w", err)
	}
	entries = append(entries, inline...)
	data, err := Archive(entries)
	return data, len(entries), err
}

// Delete removes the package file.
func (c *Capability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	err := os.Remove(h.ExternalID)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", h.ExternalID, orchestrator.ErrResourceAbsent)
	}
	if err != nil {
		return err
	}
	c.logger.Info("package removed", "path", h.ExternalID)
	return nil
}

// Load returns the bytes of the package a handle refers to.
func Load(h orchestrator.ResourceHandle) ([]byte, error) {
	path := h.Attr("path")
	if path == "" {
		path = h.ExternalID
	}
	return os.ReadFile(path)
}

// Read returns the entries of a zip archive.
func Read(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: f.Name, Data: buf.Bytes(), Mode: f.Mode()})
	}
	return entries, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
