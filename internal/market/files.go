package market

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/code-and-cash/cashctl/internal/api"
)

// MaxFileSize is the largest accepted upload. A file of exactly this size
// passes.
const MaxFileSize = 10 << 20

// Accepted declared content types for work submissions.
const (
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var allowedTypes = []string{TypePDF, TypeDOC, TypeDOCX}

// File is a local file staged for upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// ValidateFile checks the declared type and size of f. The returned error,
// if any, is a *api.ValidationError keyed by field.
func ValidateFile(f File) error {
	verr := &api.ValidationError{}
	if strings.TrimSpace(f.Name) == "" {
		verr.Add("name", "is required")
	}
	if !allowedType(f.ContentType) {
		verr.Add("type", fmt.Sprintf("%q is not allowed (PDF, DOC or DOCX only)", f.ContentType))
	}
	if f.Size > MaxFileSize {
		verr.Add("size", fmt.Sprintf("%d bytes exceeds the 10 MB limit", f.Size))
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// ValidateFiles checks every file and reports all problems at once, keyed
// by file name.
func ValidateFiles(files []File) error {
	verr := &api.ValidationError{}
	if len(files) == 0 {
		verr.Add("files", "at least one file is required")
		return verr
	}
	for i, f := range files {
		err := ValidateFile(f)
		if err == nil {
			continue
		}
		key := f.Name
		if key == "" {
			key = fmt.Sprintf("files[%d]", i)
		}
		verr.Add(key, strings.TrimPrefix(err.Error(), "validation failed: "))
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func allowedType(contentType string) bool {
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	for _, t := range allowedTypes {
		if base == t {
			return true
		}
	}
	return false
}

// FileFromPath stats and sniffs a local file. Files over MaxFileSize are not
// read; validation rejects them before any upload.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("market: reading %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("market: %s is a directory", path)
	}

	f := File{Name: filepath.Base(path), Size: info.Size()}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("market: detecting type of %s: %w", path, err)
	}
	f.ContentType = declaredType(mtype)

	if f.Size > MaxFileSize {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("market: reading %s: %w", path, err)
	}
	f.Content = bytes.NewReader(data)
	return f, nil
}

// declaredType maps a sniffed type onto an allowed type when it matches one
// (including aliases), otherwise returns the sniffed media type.
func declaredType(mtype *mimetype.MIME) string {
	for _, t := range allowedTypes {
		if mtype.Is(t) {
			return t
		}
	}
	base, _, _ := strings.Cut(mtype.String(), ";")
	return base
}

func (f File) part() api.FilePart {
	content := f.Content
	if content == nil {
		content = bytes.NewReader(nil)
	}
	return api.FilePart{Field: "files", Filename: f.Name, ContentType: f.ContentType, Content: content}
}
