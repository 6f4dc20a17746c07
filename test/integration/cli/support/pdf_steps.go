package support

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MeKo-Tech/cardrectify/internal/testutil"
)

// RegisterPDFSteps registers steps that build PDF fixtures.
func (tc *TestContext) RegisterPDFSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a PDF "([^"]*)" containing (\d+) card photos?$`, tc.aPDFContainingCardPhotos)
}

// aPDFContainingCardPhotos imports n PNG card photos, one per page.
func (tc *TestContext) aPDFContainingCardPhotos(name string, n int) error {
	tmp, err := os.MkdirTemp(tc.WorkDir, "pdf-src-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	var images []string
	for i := range n {
		p := filepath.Join(tmp, fmt.Sprintf("card%d.png", i+1))
		if err := imaging.Save(testutil.KeystonePhoto(), p); err != nil {
			return err
		}
		images = append(images, p)
	}
	if err := api.ImportImagesFile(images, tc.Path(name), nil, nil); err != nil {
		return fmt.Errorf("failed to build PDF: %w", err)
	}
	return nil
}
