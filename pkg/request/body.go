package request

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// BodyKind selects how a request body is encoded.
type BodyKind string

const (
	BodyNone      BodyKind = ""
	BodyRaw       BodyKind = "raw"
	BodyForm      BodyKind = "form"
	BodyMultipart BodyKind = "multipart"
	BodyFile      BodyKind = "file"
)

// Body is a request body variant.
type Body struct {
	Kind BodyKind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Raw is the text of a raw body.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`

	// ContentType overrides the content type of raw and file bodies.
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`

	// Form holds url-encoded form fields.
	Form []KeyValue `json:"form,omitempty" yaml:"form,omitempty"`

	// Parts holds multipart fields and files.
	Parts []Part `json:"parts,omitempty" yaml:"parts,omitempty"`

	// File is the path of a file body.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Part is one multipart field. When File is set the part is a file upload.
type Part struct {
	Name        string `json:"name" yaml:"name"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
	File        string `json:"file,omitempty" yaml:"file,omitempty"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Disabled    bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Encoded is a body ready to be sent.
type Encoded struct {
	ContentType string
	Data        []byte
}

// Encode serializes the body. A BodyNone body encodes to nil data.
func (b Body) Encode() (Encoded, error) {
	switch b.Kind {
	case BodyNone:
		return Encoded{}, nil

	case BodyRaw:
		return Encoded{ContentType: b.ContentType, Data: []byte(b.Raw)}, nil

	case BodyForm:
		values := url.Values{}
		for _, kv := range enabled(b.Form) {
			values.Add(kv.Key, kv.Value)
		}
		return Encoded{ContentType: "application/x-www-form-urlencoded", Data: []byte(values.Encode())}, nil

	case BodyMultipart:
		return b.encodeMultipart()

	case BodyFile:
		data, err := os.ReadFile(b.File)
		if err != nil {
			return Encoded{}, fmt.Errorf("failed to read body file: %w", err)
		}
		ct := b.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return Encoded{ContentType: ct, Data: data}, nil
	}
	return Encoded{}, fmt.Errorf("unknown body kind %q", b.Kind)
}

func (b Body) encodeMultipart() (Encoded, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range b.Parts {
		if p.Disabled {
			continue
		}
		if p.File == "" {
			if err := w.WriteField(p.Name, p.Value); err != nil {
				return Encoded{}, err
			}
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(p.Name), escapeQuotes(filepath.Base(p.File))))
		ct := p.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return Encoded{}, err
		}
		f, err := os.Open(p.File)
		if err != nil {
			return Encoded{}, fmt.Errorf("failed to open multipart file: %w", err)
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return Encoded{}, fmt.Errorf("failed to read multipart file: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return Encoded{}, err
	}
	return Encoded{ContentType: w.FormDataContentType(), Data: buf.Bytes()}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
