package document

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BrotherHong/rag-web-backend/src/log"
)

const (
	sofficeTimeout    = 60 * time.Second
	mineruTimeout     = 10 * time.Minute
	markitdownTimeout = 2 * time.Minute
)

// ConverterConfig holds the external tool commands used for conversion.
type ConverterConfig struct {
	SofficeCmd      string
	MineruCmd       string
	MarkitdownCmd   string
	UseMineruForPDF bool
}

// Converter turns office documents and PDFs into markdown text by shelling
// out to external conversion tools. It never modifies the source file and
// never retries; a failed conversion requires resubmitting the whole file.
type Converter struct {
	cfg ConverterConfig
}

// SupportedExtensions lists the file types the converter accepts.
var SupportedExtensions = map[string]struct{}{
	".doc":  {},
	".docx": {},
	".pdf":  {},
	".xlsx": {},
	".xls":  {},
	".txt":  {},
}

// NewConverter creates a converter with the given tool configuration.
// Empty commands fall back to the tool names resolved via PATH.
func NewConverter(cfg ConverterConfig) *Converter {
	if cfg.SofficeCmd == "" {
		cfg.SofficeCmd = "soffice"
	}
	if cfg.MineruCmd == "" {
		cfg.MineruCmd = "mineru"
	}
	if cfg.MarkitdownCmd == "" {
		cfg.MarkitdownCmd = "markitdown"
	}
	return &Converter{cfg: cfg}
}

// Convert produces a markdown rendition of sourcePath at targetPath.
// .doc files are first normalized to .docx through LibreOffice; PDFs go
// through mineru when enabled; everything else goes through markitdown.
func (c *Converter) Convert(ctx context.Context, sourcePath, targetPath string) error {
	if _, err := os.Stat(sourcePath); err != nil {
		return fmt.Errorf("source file not found: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(sourcePath))
	if _, ok := SupportedExtensions[ext]; !ok {
		return fmt.Errorf("unsupported file type %q", ext)
	}

	if ext == ".doc" {
		docxPath, err := c.convertDocToDocx(ctx, sourcePath)
		if err != nil {
			return err
		}
		sourcePath = docxPath
		ext = ".docx"
	}

	if ext == ".pdf" && c.cfg.UseMineruForPDF {
		return c.convertPDFWithMineru(ctx, sourcePath, targetPath)
	}

	return c.convertWithMarkitdown(ctx, sourcePath, targetPath)
}

// convertDocToDocx normalizes a legacy .doc file through LibreOffice. The
// resulting .docx lands in a temp_docx directory next to the source.
func (c *Converter) convertDocToDocx(ctx context.Context, docPath string) (string, error) {
	outDir := filepath.Join(filepath.Dir(docPath), "temp_docx")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create docx output directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, sofficeTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.cfg.SofficeCmd,
		"--headless",
		"--convert-to", "docx",
		"--outdir", outDir,
		docPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("soffice conversion failed: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}

	stem := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	docxPath := filepath.Join(outDir, stem+".docx")
	if _, err := os.Stat(docxPath); err != nil {
		return "", fmt.Errorf("soffice produced no output file: %w", err)
	}

	return docxPath, nil
}

// convertPDFWithMineru extracts a PDF to markdown via the mineru pipeline.
// mineru writes <stem>/auto/<stem>.md under the output directory; the file
// is moved to targetPath and the scratch tree removed.
func (c *Converter) convertPDFWithMineru(ctx context.Context, pdfPath, targetPath string) error {
	outDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, mineruTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.cfg.MineruCmd,
		"-p", pdfPath,
		"-o", outDir,
		"-m", "auto",
		"-b", "pipeline",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mineru conversion failed: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}

	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	mdPath := filepath.Join(outDir, stem, "auto", stem+".md")
	if _, err := os.Stat(mdPath); err != nil {
		found, findErr := findMarkdownOutput(outDir, stem)
		if findErr != nil {
			return fmt.Errorf("mineru finished but produced no markdown output: %w", findErr)
		}
		mdPath = found
	}

	if err := os.Rename(mdPath, targetPath); err != nil {
		return fmt.Errorf("failed to move mineru output: %w", err)
	}

	if err := os.RemoveAll(filepath.Join(outDir, stem)); err != nil {
		log.Error(err, "failed to clean mineru scratch tree", "dir", filepath.Join(outDir, stem))
	}

	return nil
}

// findMarkdownOutput searches the output directory for a markdown file whose
// name contains the PDF stem.
func findMarkdownOutput(outDir, stem string) (string, error) {
	var found string
	err := filepath.WalkDir(outDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return err
		}
		if strings.HasSuffix(path, ".md") && strings.Contains(filepath.Base(path), stem) {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no markdown file matching %q under %s", stem, outDir)
	}
	return found, nil
}

// convertWithMarkitdown runs the generic converter for every other format.
func (c *Converter) convertWithMarkitdown(ctx context.Context, sourcePath, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, markitdownTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.cfg.MarkitdownCmd, sourcePath, "-o", targetPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("markitdown conversion failed: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}

	if _, err := os.Stat(targetPath); err != nil {
		return fmt.Errorf("markitdown produced no output file: %w", err)
	}

	return nil
}
