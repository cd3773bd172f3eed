package dpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type trackedResource struct {
	id      string
	content string
	readErr error
	closed  bool
}

func (r *trackedResource) ID() (string, error)           { return r.id, nil }
func (r *trackedResource) ContentType() string           { return ContentTypeText }
func (r *trackedResource) Headers() textproto.MIMEHeader { return nil }
func (r *trackedResource) Open() (io.ReadCloser, error) {
	return &trackedReader{r: r, body: strings.NewReader(r.content)}, nil
}

type trackedReader struct {
	r    *trackedResource
	body io.Reader
}

func (t *trackedReader) Read(p []byte) (int, error) {
	if t.r.readErr != nil {
		return 0, t.r.readErr
	}
	return t.body.Read(p)
}

func (t *trackedReader) Close() error {
	t.r.closed = true
	return nil
}

type multipartPart struct {
	name        string
	filename    string
	contentType string
	content     string
}

func readParts(t *testing.T, body []byte, contentType string) []multipartPart {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("ParseMediaType() err=%v", err)
	}
	if mediaType != "multipart/form-data" {
		t.Fatalf("media type=%q, want multipart/form-data", mediaType)
	}
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	var parts []multipartPart
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart() err=%v", err)
		}
		_, disp, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			t.Fatalf("Content-Disposition err=%v", err)
		}
		content, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("ReadAll() err=%v", err)
		}
		parts = append(parts, multipartPart{
			name:        disp["name"],
			filename:    disp["filename"],
			contentType: part.Header.Get("Content-Type"),
			content:     string(content),
		})
	}
	return parts
}

func TestBuildBundle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "init.yaml")
	if err := os.WriteFile(path, []byte("type: orchestration\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}
	resources := []Resource{
		FileResource{Name: "sql-init/init.yaml", Path: path, Type: ContentTypePipeline},
		ConnectorResource{Type: ConnectorFlex, Raw: json.RawMessage(`{"alternateId": "hubspot"}`)},
	}

	bundle, err := BuildBundle(resources)
	if err != nil {
		t.Fatalf("BuildBundle() err=%v", err)
	}
	parts := readParts(t, bundle.Body, bundle.ContentType)
	want := []multipartPart{
		{name: "sql-init/init.yaml", filename: "sql-init/init.yaml", contentType: ContentTypePipeline, content: "type: orchestration\n"},
		{name: "connector-profile:flex-hubspot.json", filename: "connector-profile:flex-hubspot.json", contentType: ContentTypeConnectorProfile, content: `{"alternateId":"hubspot"}`},
	}
	if len(parts) != len(want) {
		t.Fatalf("parts=%+v, want %+v", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("part[%d]=%+v, want %+v", i, parts[i], want[i])
		}
	}
	if len(bundle.Entries) != 2 || bundle.Entries[1].Key != "connector-profile:flex-hubspot.json" {
		t.Fatalf("Entries=%+v", bundle.Entries)
	}
}

func TestBuildBundle_EscapesLineBreaksInIdentifier(t *testing.T) {
	dir := t.TempDir()
	name := "a\r\nContent-Type: evil\r\n\r\nx.sql"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
		t.Skipf("file system rejects line breaks in names: %v", err)
	}
	resources, err := DiscoverFiles(dir)
	if err != nil {
		t.Fatalf("DiscoverFiles() err=%v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("DiscoverFiles()=%d resources, want 1", len(resources))
	}

	bundle, err := BuildBundle(resources)
	if err != nil {
		t.Fatalf("BuildBundle() err=%v", err)
	}
	parts := readParts(t, bundle.Body, bundle.ContentType)
	if len(parts) != 1 {
		t.Fatalf("parts=%+v, want 1", parts)
	}
	want := "a%0D%0AContent-Type: evil%0D%0A%0D%0Ax.sql"
	if parts[0].name != want || parts[0].filename != want {
		t.Fatalf("name=%q filename=%q, want %q", parts[0].name, parts[0].filename, want)
	}
	if parts[0].contentType != ContentTypeText {
		t.Fatalf("Content-Type=%q, want %q", parts[0].contentType, ContentTypeText)
	}
	if parts[0].content != "select 1;" {
		t.Fatalf("content=%q", parts[0].content)
	}
}

func TestBuildBundle_ClosesContentOnFailure(t *testing.T) {
	first := &trackedResource{id: "a.sql", content: "select 1;"}
	second := &trackedResource{id: "b.sql", readErr: errors.New("disk gone")}

	_, err := BuildBundle([]Resource{first, second})
	if err == nil {
		t.Fatalf("BuildBundle() expected error")
	}
	if !first.closed || !second.closed {
		t.Fatalf("closed=(%v,%v), want both closed", first.closed, second.closed)
	}
}

func TestBuildBundle_ClosesContentOnSuccess(t *testing.T) {
	r := &trackedResource{id: "a.sql", content: "select 1;"}
	if _, err := BuildBundle([]Resource{r}); err != nil {
		t.Fatalf("BuildBundle() err=%v", err)
	}
	if !r.closed {
		t.Fatalf("content not closed")
	}
}

func TestBuildBundle_MissingConnectorIDFailsBeforeReading(t *testing.T) {
	file := &trackedResource{id: "a.sql", content: "select 1;"}
	_, err := BuildBundle([]Resource{
		file,
		ConnectorResource{Type: ConnectorCustom, Raw: json.RawMessage(`{"name":"no id"}`)},
	})
	if !errors.Is(err, ErrConnectorMissingID) {
		t.Fatalf("BuildBundle() err=%v, want ErrConnectorMissingID", err)
	}
	if file.closed {
		t.Fatalf("file content was opened before identifiers were validated")
	}
}

func TestBuildBundle_DuplicateIdentifier(t *testing.T) {
	_, err := BuildBundle([]Resource{
		ConnectorResource{Type: ConnectorCustom, Raw: json.RawMessage(`{"id":"x"}`)},
		ConnectorResource{Type: ConnectorCustom, Raw: json.RawMessage(`{"id":"x","name":"copy"}`)},
	})
	if !errors.Is(err, ErrDuplicateResource) {
		t.Fatalf("BuildBundle() err=%v, want ErrDuplicateResource", err)
	}
}

func TestPublish(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	bundle, err := BuildBundle([]Resource{&trackedResource{id: "a.sql", content: "select 1;"}})
	if err != nil {
		t.Fatalf("BuildBundle() err=%v", err)
	}
	meta := ArtifactMetadata{VersionName: "v1", CommitHash: "abc123", EnvironmentName: "demo", BranchName: "main"}
	if err := Publish(context.Background(), NewClient(srv.Client(), "tok", "rid-1"), srv.URL, bundle, meta); err != nil {
		t.Fatalf("Publish() err=%v", err)
	}

	checks := map[string]string{
		"Authorization":   "Bearer tok",
		"versionName":     "v1",
		"commitHash":      "abc123",
		"environmentName": "demo",
		"branch":          "main",
		"X-Request-Id":    "rid-1",
	}
	for name, want := range checks {
		if got := gotHeaders.Get(name); got != want {
			t.Fatalf("header %s=%q, want %q", name, got, want)
		}
	}
	gotParts := readParts(t, gotBody, gotHeaders.Get("Content-Type"))
	if len(gotParts) != 1 || gotParts[0].name != "a.sql" || gotParts[0].content != "select 1;" {
		t.Fatalf("parts=%+v", gotParts)
	}
}

func TestPublish_StatusHandling(t *testing.T) {
	cases := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusCreated, false},
		{http.StatusAccepted, true},
		{http.StatusBadRequest, true},
		{http.StatusInternalServerError, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("server says no"))
		}))
		err := Publish(context.Background(), NewClient(srv.Client(), "tok", ""), srv.URL, Bundle{ContentType: "multipart/form-data; boundary=x"}, ArtifactMetadata{})
		srv.Close()
		if (err != nil) != tc.wantErr {
			t.Fatalf("status %d: Publish() err=%v, wantErr=%v", tc.status, err, tc.wantErr)
		}
		if err != nil {
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tc.status || statusErr.Body != "server says no" {
				t.Fatalf("status %d: err=%#v, want StatusError carrying status and body", tc.status, err)
			}
		}
	}
}
