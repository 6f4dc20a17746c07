// Package pdf pulls embedded raster images out of PDF files so scanned card
// documents can be fed through the rectification pipeline.
package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Credentials unlock encrypted documents.
type Credentials struct {
	UserPassword  string `json:"user_password,omitempty"`
	OwnerPassword string `json:"owner_password,omitempty"`
}

// Page holds the images embedded on one page. Number 0 means pdfcpu wrote a
// file whose page could not be recovered.
type Page struct {
	Number int
	Images []image.Image
}

// Options controls extraction.
type Options struct {
	Pages       string // "1-3,5"; empty selects all pages
	Credentials *Credentials
}

func configuration(creds *Credentials) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if creds != nil {
		conf.UserPW = creds.UserPassword
		conf.OwnerPW = creds.OwnerPassword
	}
	return conf
}

// PageCount returns the number of pages in filename.
func PageCount(filename string, creds *Credentials) (int, error) {
	n, err := api.PageCountFile(filename)
	if err != nil {
		if creds == nil {
			return 0, fmt.Errorf("count pages: %w", err)
		}
		f, ferr := os.Open(filename) //nolint:gosec // G304: caller-provided document path
		if ferr != nil {
			return 0, ferr
		}
		defer func() { _ = f.Close() }()
		n, err = api.PageCount(f, configuration(creds))
		if err != nil {
			return 0, fmt.Errorf("count pages: %w", err)
		}
	}
	return n, nil
}

// ExtractImages extracts all images from filename, grouped by page and
// sorted by page number.
func ExtractImages(filename string, opts Options) ([]Page, error) {
	pageNumbers, err := ParsePageRange(opts.Pages)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", opts.Pages, err)
	}

	tempDir, err := os.MkdirTemp("", "cardrectify-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pageNumbers {
		selected = append(selected, strconv.Itoa(n))
	}

	if err := api.ExtractImagesFile(filename, tempDir, selected, configuration(opts.Credentials)); err != nil {
		return nil, fmt.Errorf("extract images from %s: %w", filepath.Base(filename), err)
	}
	return collectExtractedImages(tempDir)
}

func loadImageFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: file inside our temp directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	return img, err
}

// collectExtractedImages groups the files in dir by page. Unreadable files
// are skipped.
func collectExtractedImages(dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	byPage := map[int][]image.Image{}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		img, err := loadImageFile(filepath.Join(dir, name))
		if err != nil || img == nil {
			continue
		}
		page, err := parsePageFromFilename(name)
		if err != nil {
			page = 0
		}
		byPage[page] = append(byPage[page], img)
	}

	pages := make([]Page, 0, len(byPage))
	for n, imgs := range byPage {
		pages = append(pages, Page{Number: n, Images: imgs})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// parsePageFromFilename reads the page number from pdfcpu's
// <base>_<page>_<id>.<ext> naming.
func parsePageFromFilename(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return 0, errors.New("not an extracted image name")
	}
	n, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || n < 1 {
		return 0, errors.New("invalid page number")
	}
	return n, nil
}

// ParsePageRange parses a page selection like "1-5" or "1,3,5".
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

func parseRangeToken(part string) ([]int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 1 {
			return nil, fmt.Errorf("invalid start page: %s", lo)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", hi)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
