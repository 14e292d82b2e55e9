// Package filename derives collision-free destination paths for downloaded assets.
package filename

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	filePerm    = 0644
	maxAttempts = 10000
	fallback    = "download"
)

var errNotAbsolute = errors.New("url is not absolute")

// Name builds "{name}_{code}{ext}" from the page URL's path (the short code)
// and the asset URL's base name. When either URL is malformed the asset's bare
// base name is returned instead.
func Name(pageURL, assetURL string) string {
	asset, err := parseAbsolute(assetURL)
	if err != nil {
		return baseOf(rawPath(assetURL))
	}

	base := baseOf(asset.Path)

	page, err := parseAbsolute(pageURL)
	if err != nil {
		return base
	}

	code := strings.ReplaceAll(strings.Trim(page.Path, "/"), "/", "_")
	if code == "" {
		return base
	}

	name, ext := split(base)

	return name + "_" + code + ext
}

// Derive returns the first free destination in dir for the given pair of URLs.
func Derive(fs afero.Fs, dir, pageURL, assetURL string) (string, error) {
	return Unique(fs, filepath.Join(dir, Name(pageURL, assetURL)))
}

// Unique returns p when nothing occupies it, otherwise the first free
// "{name}_{n}{ext}" sibling with n counting from 1.
func Unique(fs afero.Fs, p string) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		candidate := withCounter(p, i)

		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to probe %s: %w", candidate, err)
		}

		if !exists {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no free name for %s after %d attempts", p, maxAttempts)
}

// Create atomically claims p, or the first free numbered sibling, by opening
// it with O_EXCL. The returned file is open for writing.
func Create(fs afero.Fs, p string) (afero.File, string, error) {
	for i := 0; i < maxAttempts; i++ {
		candidate := withCounter(p, i)

		f, err := fs.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			return f, candidate, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", candidate, err)
		}
	}

	return nil, "", fmt.Errorf("no free name for %s after %d attempts", p, maxAttempts)
}

func withCounter(p string, counter int) string {
	if counter == 0 {
		return p
	}

	dir, base := filepath.Split(p)
	name, ext := split(base)

	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, counter, ext))
}

func split(base string) (string, string) {
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)

	if name == "" {
		return base, ""
	}

	return name, ext
}

func baseOf(p string) string {
	b := path.Base(p)
	if b == "." || b == "/" || b == "" {
		return fallback
	}

	return b
}

func rawPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}

	return raw
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, errNotAbsolute
	}

	return u, nil
}
