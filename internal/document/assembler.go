package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Assembler receives every fully completed document. What it does with it
// (storage, delivery) is up to the implementation.
type Assembler interface {
	Assemble(ctx context.Context, doc *Document) error
}

// Compile-time checks.
var (
	_ Assembler = (*FileAssembler)(nil)
	_ Assembler = NopAssembler{}
)

// FileAssembler writes markdown documents to <dir>/<subject>/<variant>.md.
type FileAssembler struct {
	dir string
}

// NewFileAssembler returns an Assembler rooted at dir.
func NewFileAssembler(dir string) *FileAssembler {
	return &FileAssembler{dir: dir}
}

// Path returns where a document for subject and variant is written.
func (a *FileAssembler) Path(subjectID, variant string) string {
	return filepath.Join(a.dir, subjectID, variant+".md")
}

// Assemble renders doc as markdown and writes it atomically.
func (a *FileAssembler) Assemble(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Render(doc, FormatMarkdown)
	if err != nil {
		return err
	}

	path := a.Path(doc.SubjectID, doc.Variant)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("document: mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("document: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("document: rename %s: %w", path, err)
	}
	return nil
}

// NopAssembler discards documents.
type NopAssembler struct{}

// Assemble does nothing.
func (NopAssembler) Assemble(context.Context, *Document) error { return nil }
