// Package registry implements the PackageRegistry port against an npm-compatible registry.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/kiln/internal/adapters/atomicfile"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	httpClientTimeout = 30 * time.Second
	cacheTTL          = 10 * time.Minute
	acceptHeader      = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"
)

// Client implements ports.PackageRegistry with an on-disk metadata cache.
type Client struct {
	baseURL    string
	cacheDir   string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a registry client for baseURL caching metadata below root.
func NewClient(root, baseURL string) *Client {
	return newClientWithHTTP(root, baseURL, &http.Client{Timeout: httpClientTimeout})
}

// newClientWithHTTP creates a Client with a custom http client (used for testing).
func newClientWithHTTP(root, baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = domain.DefaultRegistry
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cacheDir:   filepath.Join(root, domain.DefaultRegistryCachePath()),
		httpClient: client,
		now:        time.Now,
	}
}

// Metadata returns the published versions of a package.
// A fresh cache entry is used without a request. A stale one is used only
// when the registry cannot be reached.
func (c *Client) Metadata(ctx context.Context, name string) (*domain.PackageMetadata, error) {
	cachePath := c.cachePath(name)
	cached, cacheErr := c.loadFromCache(cachePath)
	if cacheErr == nil && c.now().Sub(cached.Timestamp) < cacheTTL {
		return cached.Document.toDomain(), nil
	}

	doc, err := c.queryRegistry(ctx, name)
	if err != nil {
		if cacheErr == nil && errors.Is(err, domain.ErrRegistryRequestFailed) {
			return cached.Document.toDomain(), nil
		}
		return nil, err
	}

	// A failed cache write costs a request next time and nothing else.
	_ = c.saveToCache(cachePath, name, doc)

	return doc.toDomain(), nil
}

// Fetch downloads a package tarball.
func (c *Client) Fetch(ctx context.Context, tarballURL string) ([]byte, error) {
	resp, err := c.get(ctx, tarballURL, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.WithMeta(domain.ErrRegistryRequestFailed, "status_code", resp.StatusCode, "url", tarballURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrRegistryRequestFailed.Error())
	}
	return data, nil
}

// PackageURL returns the metadata URL of a package. Scoped names keep the
// leading @ and escape the separating slash.
func (c *Client) PackageURL(name string) string {
	return c.baseURL + "/" + escapeName(name)
}

func escapeName(name string) string {
	if strings.HasPrefix(name, "@") {
		if scope, pkg, ok := strings.Cut(name[1:], "/"); ok {
			return "@" + url.PathEscape(scope) + "%2f" + url.PathEscape(pkg)
		}
	}
	return url.PathEscape(name)
}

func (c *Client) queryRegistry(ctx context.Context, name string) (*packument, error) {
	resp, err := c.get(ctx, c.PackageURL(name), acceptHeader)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.WithMeta(domain.ErrPackageNotFound, "package", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.WithMeta(domain.ErrRegistryRequestFailed, "status_code", resp.StatusCode, "package", name)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrRegistryRequestFailed.Error())
	}

	var doc packument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, domain.WithMeta(zerr.Wrap(err, domain.ErrRegistryParseFailed.Error()), "package", name)
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return &doc, nil
}

func (c *Client) get(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrRegistryRequestFailed.Error())
	}
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(domain.ErrRegistryRequestFailed, err)
	}
	return resp, nil
}

func (c *Client) cachePath(name string) string {
	sum := sha256.Sum256([]byte(c.baseURL + "\n" + name))
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:])+".json")
}

func (c *Client) loadFromCache(path string) (*cacheEntry, error) {
	//nolint:gosec // Path is constructed from trusted directory and hashed filename
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrStoreReadFailed
		}
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error())
	}
	if entry.Registry != c.baseURL {
		return nil, domain.ErrStoreReadFailed
	}
	return &entry, nil
}

func (c *Client) saveToCache(path, name string, doc *packument) error {
	entry := cacheEntry{
		Name:      name,
		Registry:  c.baseURL,
		Document:  *doc,
		Timestamp: c.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	if err := atomicfile.Write(path, data, domain.FilePerm, "registry-*.json"); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	return nil
}
