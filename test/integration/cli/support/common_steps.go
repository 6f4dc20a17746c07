package support

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/cardrectify/internal/testutil"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

// RegisterCommonSteps registers fixture, command and output steps.
func (tc *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	// Fixtures
	sc.Step(`^a card photo "([^"]*)"$`, tc.aCardPhoto)
	sc.Step(`^a corrupt image "([^"]*)"$`, tc.aCorruptImage)
	sc.Step(`^a config file "([^"]*)" with:$`, tc.aConfigFileWith)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, tc.theEnvironmentVariableIsSetTo)

	// Commands
	sc.Step(`^I run "([^"]*)"$`, tc.RunCLI)
	sc.Step(`^the command should succeed$`, tc.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, tc.theCommandShouldFail)
	sc.Step(`^the exit code should be (\d+)$`, tc.theExitCodeShouldBe)

	// Output
	sc.Step(`^the output should contain "([^"]*)"$`, tc.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, tc.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, tc.theOutputShouldBeValidJSON)
	sc.Step(`^the output should be valid CSV$`, tc.theOutputShouldBeValidCSV)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, tc.theJSONFieldShouldBe)
	sc.Step(`^the error should mention "([^"]*)"$`, tc.theErrorShouldMention)

	// Files
	sc.Step(`^the file "([^"]*)" should exist$`, tc.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, tc.theFileShouldContain)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+)$`, tc.theImageShouldBe)
	sc.Step(`^the image "([^"]*)" should be about (\d+)x(\d+)$`, tc.theImageShouldBeAbout)
	sc.Step(`^the directory "([^"]*)" should contain (\d+) files?$`, tc.theDirectoryShouldContainFiles)
}

func (tc *TestContext) aCardPhoto(name string) error {
	path := tc.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return imaging.Save(testutil.KeystonePhoto(), path)
}

func (tc *TestContext) aCorruptImage(name string) error {
	return os.WriteFile(tc.Path(name), []byte("definitely not an image"), 0o600)
}

func (tc *TestContext) aConfigFileWith(name string, body *godog.DocString) error {
	return os.WriteFile(tc.Path(name), []byte(body.Content), 0o600)
}

func (tc *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	tc.SetEnv(name, value)
	return nil
}

func (tc *TestContext) theCommandShouldSucceed() error {
	if tc.LastError != nil {
		return fmt.Errorf("command %q failed: %w\nstdout:\n%s", tc.LastCommand, tc.LastError, tc.LastOutput)
	}
	return nil
}

func (tc *TestContext) theCommandShouldFail() error {
	if tc.LastError == nil {
		return fmt.Errorf("command %q succeeded unexpectedly\nstdout:\n%s", tc.LastCommand, tc.LastOutput)
	}
	return nil
}

func (tc *TestContext) theExitCodeShouldBe(code int) error {
	if tc.LastExitCode != code {
		return fmt.Errorf("expected exit code %d, got %d (error: %v)", code, tc.LastExitCode, tc.LastError)
	}
	return nil
}

func (tc *TestContext) theOutputShouldContain(s string) error {
	if !strings.Contains(tc.LastOutput, s) {
		return fmt.Errorf("output does not contain %q:\n%s", s, tc.LastOutput)
	}
	return nil
}

func (tc *TestContext) theOutputShouldNotContain(s string) error {
	if strings.Contains(tc.LastOutput, s) {
		return fmt.Errorf("output unexpectedly contains %q:\n%s", s, tc.LastOutput)
	}
	return nil
}

func (tc *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(strings.TrimSpace(tc.LastOutput))) {
		return fmt.Errorf("output is not valid JSON:\n%s", tc.LastOutput)
	}
	return nil
}

func (tc *TestContext) theOutputShouldBeValidCSV() error {
	records, err := csv.NewReader(strings.NewReader(tc.LastOutput)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(records) < 2 {
		return fmt.Errorf("expected a header and at least one row, got %d records", len(records))
	}
	return nil
}

// theJSONFieldShouldBe follows a dotted path such as "entries.0.kind"
// through the JSON output.
func (tc *TestContext) theJSONFieldShouldBe(path, want string) error {
	got, err := jsonField(tc.LastOutput, path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("JSON field %s: expected %q, got %q", path, want, got)
	}
	return nil
}

func jsonField(doc, path string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(doc)), &v); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	for _, key := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return "", fmt.Errorf("JSON field %q not found", key)
			}
			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return "", fmt.Errorf("invalid index %q for array of %d", key, len(node))
			}
			v = node[i]
		default:
			return "", fmt.Errorf("cannot descend into %T at %q", v, key)
		}
	}
	return fmt.Sprint(v), nil
}

func (tc *TestContext) theErrorShouldMention(s string) error {
	if tc.LastError == nil {
		return errors.New("expected an error but the command succeeded")
	}
	msg := tc.LastError.Error() + "\n" + tc.LastOutput
	if !strings.Contains(strings.ToLower(msg), strings.ToLower(s)) {
		return fmt.Errorf("error does not mention %q: %s", s, msg)
	}
	return nil
}

func (tc *TestContext) theFileShouldExist(name string) error {
	if !testutil.FileExists(tc.Path(name)) {
		return fmt.Errorf("file %s does not exist", name)
	}
	return nil
}

func (tc *TestContext) theFileShouldContain(name, s string) error {
	data, err := os.ReadFile(tc.Path(name))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), s) {
		return fmt.Errorf("file %s does not contain %q", name, s)
	}
	return nil
}

func (tc *TestContext) imageSize(name string) (int, int, error) {
	img, _, err := utils.LoadImage(tc.Path(name))
	if err != nil {
		return 0, 0, err
	}
	return img.Bounds().Dx(), img.Bounds().Dy(), nil
}

func (tc *TestContext) theImageShouldBe(name string, w, h int) error {
	gw, gh, err := tc.imageSize(name)
	if err != nil {
		return err
	}
	if gw != w || gh != h {
		return fmt.Errorf("image %s is %dx%d, expected %dx%d", name, gw, gh, w, h)
	}
	return nil
}

// theImageShouldBeAbout allows for corner detection noise.
func (tc *TestContext) theImageShouldBeAbout(name string, w, h int) error {
	const slack = 8
	gw, gh, err := tc.imageSize(name)
	if err != nil {
		return err
	}
	if math.Abs(float64(gw-w)) > slack || math.Abs(float64(gh-h)) > slack {
		return fmt.Errorf("image %s is %dx%d, expected about %dx%d", name, gw, gh, w, h)
	}
	return nil
}

func (tc *TestContext) theDirectoryShouldContainFiles(name string, n int) error {
	entries, err := os.ReadDir(tc.Path(name))
	if err != nil {
		return err
	}
	files := 0
	for _, e := range entries {
		if !e.IsDir() {
			files++
		}
	}
	if files != n {
		return fmt.Errorf("directory %s holds %d files, expected %d", name, files, n)
	}
	return nil
}
