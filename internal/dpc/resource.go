package dpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"strings"
)

const (
	ContentTypePipeline         = "application/vnd.matillion.dpl+yaml"
	ContentTypeText             = "text/plain"
	ContentTypeConnectorProfile = "application/vnd.matillion.connector-profile+json"
)

var (
	ErrConnectorMissingID = errors.New("connector has no identifier")
	ErrDuplicateResource  = errors.New("duplicate resource identifier")
)

// Resource is one entry of a published artifact: a repository file or a
// connector profile fetched from the account.
type Resource interface {
	// ID is the multipart field name. It must be unique within an artifact.
	ID() (string, error)
	Open() (io.ReadCloser, error)
	ContentType() string
	Headers() textproto.MIMEHeader
}

// FileResource is a pipeline file from the working tree.
type FileResource struct {
	// Name is the slash-separated path relative to the repository root.
	Name string
	// Path is where the file is read from.
	Path string
	Type string
}

func (f FileResource) ID() (string, error) {
	if strings.TrimSpace(f.Name) == "" {
		return "", errors.New("file resource has no name")
	}
	return f.Name, nil
}

func (f FileResource) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

func (f FileResource) ContentType() string {
	if f.Type == "" {
		return ContentTypeText
	}
	return f.Type
}

func (f FileResource) Headers() textproto.MIMEHeader { return nil }

// ConnectorType distinguishes the two account-level connector listings. Each
// names the profile field that identifies a connector.
type ConnectorType struct {
	idKey  string
	prefix string
}

var (
	ConnectorCustom = ConnectorType{idKey: "id", prefix: "custom"}
	ConnectorFlex   = ConnectorType{idKey: "alternateId", prefix: "flex"}
)

func (t ConnectorType) String() string { return t.prefix }

// ConnectorResource is one connector profile exactly as the listing returned it.
type ConnectorResource struct {
	Type ConnectorType
	Raw  json.RawMessage
}

func (c ConnectorResource) ID() (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c.Raw, &fields); err != nil || fields == nil {
		return "", fmt.Errorf("%s connector profile is not a JSON object", c.Type.prefix)
	}
	value, err := identifierValue(fields[c.Type.idKey])
	if err != nil || value == "" {
		return "", fmt.Errorf("%w: %s Connector does not have an %s field", ErrConnectorMissingID, title(c.Type.prefix), c.Type.idKey)
	}
	return "connector-profile:" + c.Type.prefix + "-" + value + ".json", nil
}

func (c ConnectorResource) Open() (io.ReadCloser, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, c.Raw); err != nil {
		return nil, fmt.Errorf("%s connector profile: %w", c.Type.prefix, err)
	}
	return io.NopCloser(&buf), nil
}

func (c ConnectorResource) ContentType() string { return ContentTypeConnectorProfile }

func (c ConnectorResource) Headers() textproto.MIMEHeader { return nil }

// identifierValue renders a JSON scalar for use inside an identifier. Strings
// are unquoted; numbers keep their literal form. Null and absent fields yield
// an empty string.
func identifierValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormEntry is the multipart shape of a Resource.
type FormEntry struct {
	Key         string
	Filename    string
	ContentType string
	Header      textproto.MIMEHeader
}

func FormEntryFor(r Resource) (FormEntry, error) {
	id, err := r.ID()
	if err != nil {
		return FormEntry{}, err
	}
	return FormEntry{
		Key:         id,
		Filename:    id,
		ContentType: r.ContentType(),
		Header:      r.Headers(),
	}, nil
}
