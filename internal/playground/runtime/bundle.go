package runtime

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	appErr "codepad/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

// PreludeFile must exist in every bundle; it defines the run harness.
const PreludeFile = "prelude.lua"

const (
	maxBundleFiles    = 256
	maxBundleFileSize = 4 << 20
)

//go:embed bundle/*.lua
var embeddedBundle embed.FS

// Bundle is the set of Lua files the interpreter boots from. Files other than
// the prelude become modules loadable with require("<name>").
type Bundle struct {
	Files map[string][]byte
}

// Prelude returns the harness source.
func (b *Bundle) Prelude() []byte {
	return b.Files[PreludeFile]
}

// Modules lists the non-prelude files, sorted for deterministic preload order.
func (b *Bundle) Modules() []string {
	names := make([]string, 0, len(b.Files))
	for name := range b.Files {
		if name == PreludeFile {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModuleName converts a bundle path such as "lib/pretty.lua" to "lib.pretty".
func ModuleName(file string) string {
	name := strings.TrimSuffix(file, ".lua")
	return strings.ReplaceAll(name, "/", ".")
}

func (b *Bundle) validate() error {
	if len(b.Prelude()) == 0 {
		return appErr.New(appErr.BundleInvalid).WithMessage("runtime bundle has no " + PreludeFile)
	}
	return nil
}

// EmbeddedBundle returns the bundle compiled into the binary.
func EmbeddedBundle() (*Bundle, error) {
	return bundleFromFS(embeddedBundle, "bundle")
}

func bundleFromFS(fsys fs.FS, root string) (*Bundle, error) {
	b := &Bundle{Files: make(map[string][]byte)}
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".lua") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		rel := p
		if root != "." {
			rel = strings.TrimPrefix(p, root+"/")
		}
		b.Files[rel] = data
		return nil
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleInvalid, "read runtime bundle failed")
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseArchive decodes a zstd-compressed tar of Lua files held in memory.
func ParseArchive(data []byte) (*Bundle, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleInvalid, "create zstd reader failed")
	}
	defer zr.Close()

	b := &Bundle{Files: make(map[string][]byte)}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.BundleInvalid, "read tar entry failed")
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".lua") {
			continue
		}
		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			return nil, appErr.New(appErr.BundleInvalid).WithMessage("invalid tar entry path")
		}
		if hdr.Size > maxBundleFileSize {
			return nil, appErr.Newf(appErr.BundleInvalid, "bundle file %s is too large", name)
		}
		if len(b.Files) >= maxBundleFiles {
			return nil, appErr.New(appErr.BundleInvalid).WithMessage("too many files in bundle")
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxBundleFileSize))
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.BundleInvalid, "read bundle file %s failed", name)
		}
		b.Files[name] = content
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// verifyDigest checks data against a hex sha256; an empty want skips the check.
func verifyDigest(data []byte, want string) error {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != want {
		return appErr.Newf(appErr.BundleHashMismatch, "runtime bundle checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}
