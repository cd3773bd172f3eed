package dpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// Bundle is a fully built artifact upload body.
type Bundle struct {
	Body        []byte
	ContentType string
	Entries     []FormEntry
}

// Entries resolves every resource's form entry. It fails on the first
// resource without a usable identifier and on duplicate identifiers, before
// any content is read.
func Entries(resources []Resource) ([]FormEntry, error) {
	entries := make([]FormEntry, 0, len(resources))
	seen := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		entry, err := FormEntryFor(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[entry.Key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, entry.Key)
		}
		seen[entry.Key] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BuildBundle encodes resources as multipart/form-data, one part per resource
// keyed by its identifier. Each resource's content is opened and closed in
// turn, so no file stays open after BuildBundle returns.
func BuildBundle(resources []Resource) (Bundle, error) {
	entries, err := Entries(resources)
	if err != nil {
		return Bundle{}, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i, r := range resources {
		if err := writePart(writer, entries[i], r); err != nil {
			return Bundle{}, fmt.Errorf("add %s: %w", entries[i].Key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return Bundle{}, err
	}

	return Bundle{
		Body:        buf.Bytes(),
		ContentType: writer.FormDataContentType(),
		Entries:     entries,
	}, nil
}

// Line breaks are percent-encoded so an identifier cannot end the part header.
var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"", "\r", "%0D", "\n", "%0A")

func writePart(writer *multipart.Writer, entry FormEntry, r Resource) error {
	content, err := r.Open()
	if err != nil {
		return err
	}
	defer content.Close()

	header := make(textproto.MIMEHeader)
	for k, v := range entry.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(entry.Key), quoteEscaper.Replace(entry.Filename)))
	header.Set("Content-Type", entry.ContentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, content)
	return err
}

// ArtifactMetadata is sent alongside the bundle as request headers.
type ArtifactMetadata struct {
	VersionName     string
	CommitHash      string
	EnvironmentName string
	BranchName      string
}

func (m ArtifactMetadata) headers() map[string]string {
	return map[string]string{
		"versionName":     m.VersionName,
		"commitHash":      m.CommitHash,
		"environmentName": m.EnvironmentName,
		"branch":          m.BranchName,
	}
}

// Publish uploads the bundle. Only 200 and 201 count as success.
func Publish(ctx context.Context, client *Client, url string, bundle Bundle, meta ArtifactMetadata) error {
	resp, err := client.PostMultipart(ctx, url, meta.headers(), bundle.Body, bundle.ContentType)
	if err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return newStatusError("publish artifact", resp)
	}
}
