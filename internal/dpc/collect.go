package dpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// pipelineContentTypes maps the file suffixes that belong in an artifact to
// the content type they are uploaded with. Matching is case-sensitive.
var pipelineContentTypes = map[string]string{
	".yaml": ContentTypePipeline,
	".yml":  ContentTypePipeline,
	".py":   ContentTypeText,
	".sql":  ContentTypeText,
}

// ContentTypeForFile returns the upload content type for name, or false when
// the file is not part of an artifact.
func ContentTypeForFile(name string) (string, bool) {
	ct, ok := pipelineContentTypes[suffix(filepath.Base(name))]
	return ct, ok
}

// suffix is the final dot-extension of a file name. A leading dot does not
// start an extension, so ".yaml" has none.
func suffix(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}

// DiscoverFiles walks root and returns one FileResource per pipeline file in
// walk order. The .git directory is not descended into.
func DiscoverFiles(root string) ([]Resource, error) {
	var out []Resource
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		ct, ok := ContentTypeForFile(d.Name())
		if !ok {
			return nil
		}
		if !isRegularFile(path, d) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, FileResource{Name: filepath.ToSlash(rel), Path: path, Type: ct})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover files under %s: %w", root, err)
	}
	return out, nil
}

func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FetchConnectors lists one connector endpoint. Listing problems are logged
// and yield no connectors; only context cancellation is returned as an error.
func FetchConnectors(ctx context.Context, client *Client, url string, typ ConnectorType, logger *slog.Logger) ([]Resource, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("connector listing failed", "type", typ.String(), "url", url, "error", err)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("connector listing unavailable, continuing without them",
			"type", typ.String(), "status", resp.StatusCode, "body", strings.TrimSpace(string(resp.Body)))
		return nil, nil
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}

	var profiles []json.RawMessage
	if err := json.Unmarshal(resp.Body, &profiles); err != nil {
		logger.Warn("could not decode connector listing",
			"type", typ.String(), "error", err, "body", strings.TrimSpace(string(resp.Body)))
		return nil, nil
	}

	out := make([]Resource, 0, len(profiles))
	for _, raw := range profiles {
		out = append(out, ConnectorResource{Type: typ, Raw: raw})
	}
	logger.Info("found connectors", "type", typ.String(), "count", len(out))
	return out, nil
}

// Collect gathers everything a publish uploads: repository files first, then
// custom connectors, then flex connectors.
func Collect(ctx context.Context, root string, client *Client, endpoints Endpoints, logger *slog.Logger) ([]Resource, error) {
	resources, err := DiscoverFiles(root)
	if err != nil {
		return nil, err
	}
	logger.Info("discovered pipeline files", "root", root, "count", len(resources))

	logger.Info("fetching custom and flex connectors")
	custom, err := FetchConnectors(ctx, client, endpoints.CustomConnectors, ConnectorCustom, logger)
	if err != nil {
		return nil, err
	}
	flex, err := FetchConnectors(ctx, client, endpoints.FlexConnectors, ConnectorFlex, logger)
	if err != nil {
		return nil, err
	}

	resources = append(resources, custom...)
	return append(resources, flex...), nil
}
