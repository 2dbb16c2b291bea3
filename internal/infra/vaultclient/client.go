package vaultclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrSecretNotFound = errors.New("vault secret not found")
	// ErrVersionDeleted covers both soft-deleted and destroyed KV v2 versions.
	ErrVersionDeleted = errors.New("vault secret version deleted")
)

// SecretField is one string field of a KV v2 secret, with the version it was
// read from so rotations can be logged.
type SecretField struct {
	Value   string
	Version int
}

// Client reads single fields of KV v2 secrets over the Vault HTTP API.
type Client struct {
	addr       string
	token      string
	httpClient *http.Client
}

func New(addr, token string) *Client {
	return &Client{
		addr:       strings.TrimRight(addr, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// DataPath turns "mount/name" into the KV v2 read path "mount/data/name".
// Paths that already carry the data segment are returned unchanged.
func DataPath(path string) (string, error) {
	path = strings.Trim(path, "/")
	mount, name, ok := strings.Cut(path, "/")
	if !ok || mount == "" || name == "" {
		return "", fmt.Errorf("vault secret path %q must be mount/name", path)
	}
	if strings.HasPrefix(name, "data/") {
		return path, nil
	}
	return mount + "/data/" + name, nil
}

// ReadField returns field from the secret at path. A version of zero reads
// the current version.
func (c *Client) ReadField(ctx context.Context, path, field string, version int) (SecretField, error) {
	if c == nil {
		return SecretField{}, errors.New("vault client is nil")
	}
	if c.addr == "" || c.token == "" {
		return SecretField{}, errors.New("vault client missing configuration")
	}
	if field == "" {
		return SecretField{}, errors.New("vault secret field is required")
	}
	dataPath, err := DataPath(path)
	if err != nil {
		return SecretField{}, err
	}
	endpoint := c.addr + "/v1/" + dataPath
	if version > 0 {
		endpoint += "?" + url.Values{"version": {strconv.Itoa(version)}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SecretField{}, err
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SecretField{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SecretField{}, err
	}
	var envelope struct {
		Data struct {
			Data     map[string]any `json:"data"`
			Metadata struct {
				Version      int    `json:"version"`
				DeletionTime string `json:"deletion_time"`
				Destroyed    bool   `json:"destroyed"`
			} `json:"metadata"`
		} `json:"data"`
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Vault answers 404 with metadata when the requested version is deleted.
		if json.Unmarshal(body, &envelope) == nil && envelope.Data.Metadata.Version > 0 {
			return SecretField{}, fmt.Errorf("%w: %s version %d", ErrVersionDeleted, dataPath, envelope.Data.Metadata.Version)
		}
		return SecretField{}, fmt.Errorf("%w: %s", ErrSecretNotFound, dataPath)
	case resp.StatusCode != http.StatusOK:
		return SecretField{}, fmt.Errorf("vault read %s failed: status %d", dataPath, resp.StatusCode)
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return SecretField{}, err
	}
	meta := envelope.Data.Metadata
	if meta.Destroyed || meta.DeletionTime != "" {
		return SecretField{}, fmt.Errorf("%w: %s version %d", ErrVersionDeleted, dataPath, meta.Version)
	}
	raw, ok := envelope.Data.Data[field]
	if !ok {
		return SecretField{}, fmt.Errorf("vault secret %s has no field %q", dataPath, field)
	}
	value, ok := raw.(string)
	if !ok {
		return SecretField{}, fmt.Errorf("vault secret %s field %q is not a string", dataPath, field)
	}
	return SecretField{Value: value, Version: meta.Version}, nil
}
