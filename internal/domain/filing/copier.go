package filing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ehr/folio/internal/domain/destination"
	"github.com/ehr/folio/internal/domain/documents"
)

var (
	ErrInvalidDestName = errors.New("destination file name is not valid")
	ErrNotPDF          = errors.New("only .pdf files may be copied")
	ErrNotUNC          = errors.New("destination directory must be a UNC path")
	ErrRelativeSegment = errors.New("destination directory must not contain . or .. segments")
)

// CopyResult describes a completed copy.
type CopyResult struct {
	DestinationDir  string `json:"dest_dir"`
	DestinationPath string `json:"dest_path"`
	FileName        string `json:"filename"`
	Bytes           int64  `json:"bytes"`
}

// Copier writes a document's bytes to its destination directory.
type Copier interface {
	Copy(ctx context.Context, src documents.Source, destDir, destName string) (*CopyResult, error)
}

// FileCopier copies to the filesystem. When MountRoot is set, UNC paths
// \\server\share\dir are written under MountRoot/server/share/dir.
type FileCopier struct {
	MountRoot string
}

func NewFileCopier(mountRoot string) *FileCopier {
	return &FileCopier{MountRoot: mountRoot}
}

var driveLetter = regexp.MustCompile(`^[A-Za-z]:`)

const forbiddenNameChars = "<>:\"/\\|?*\x00"

// SafeFileName reduces name to its base and rejects reserved characters.
func SafeFileName(name string) (string, error) {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.Trim(strings.TrimSpace(base), ".")
	if base == "" || strings.ContainsAny(base, forbiddenNameChars) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDestName, name)
	}
	return base, nil
}

// LocalDir maps a canonical UNC directory to the path written on this host.
// Directories with . or .. segments are rejected so a HIS supplied route
// cannot leave the share or MountRoot.
func (c *FileCopier) LocalDir(uncDir string) (string, error) {
	parts := strings.Split(strings.TrimLeft(uncDir, `\`), `\`)
	for _, p := range parts {
		if p == "." || p == ".." {
			return "", fmt.Errorf("%w: %s", ErrRelativeSegment, uncDir)
		}
	}
	if c.MountRoot == "" {
		return uncDir, nil
	}
	root := filepath.Clean(c.MountRoot)
	dir := filepath.Join(append([]string{root}, parts...)...)
	if rel, err := filepath.Rel(root, dir); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrRelativeSegment, uncDir)
	}
	return dir, nil
}

func (c *FileCopier) Copy(ctx context.Context, src documents.Source, destDir, destName string) (*CopyResult, error) {
	name, err := SafeFileName(destName)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return nil, ErrNotPDF
	}
	if driveLetter.MatchString(strings.TrimSpace(destDir)) {
		return nil, fmt.Errorf("%w: %s", ErrNotUNC, destDir)
	}
	uncDir := destination.NormalizeUNC(destDir)
	if uncDir == "" {
		return nil, fmt.Errorf("%w: empty", ErrNotUNC)
	}

	dir, err := c.LocalDir(uncDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination %s: %w", uncDir, err)
	}

	in, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	final := filepath.Join(dir, name)
	tmp := filepath.Join(dir, "."+name+".uploading")
	n, err := writeAtomic(tmp, final, in)
	if err != nil {
		return nil, err
	}

	return &CopyResult{
		DestinationDir:  uncDir,
		DestinationPath: destination.JoinUNC(uncDir, name),
		FileName:        name,
		Bytes:           n,
	}, nil
}

func writeAtomic(tmp, final string, r io.Reader) (int64, error) {
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", final, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename into %s: %w", final, err)
	}
	return n, nil
}
