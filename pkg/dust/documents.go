package dust

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DocumentUpsert describes a text document to write into a data source.
type DocumentUpsert struct {
	SpaceID        string `validate:"required"`
	DataSourceName string `validate:"required"`
	DocumentID     string `validate:"required"`
	Text           string `validate:"required"`

	Title               string
	MimeType            string
	SourceURL           string
	Async               *bool
	LightDocumentOutput *bool
	Tags                []string
}

type documentUpsertBody struct {
	Text                string   `json:"text"`
	Title               string   `json:"title,omitempty"`
	MimeType            string   `json:"mime_type,omitempty"`
	Async               *bool    `json:"async,omitempty"`
	LightDocumentOutput *bool    `json:"light_document_output,omitempty"`
	SourceURL           string   `json:"source_url,omitempty"`
	Tags                []string `json:"tags,omitempty"`
}

// UpsertDocument uploads doc and returns the decoded API response.
func (c *Client) UpsertDocument(ctx context.Context, doc DocumentUpsert) (map[string]any, error) {
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: document: %w", ErrInvalidRequest, err)
	}

	body := documentUpsertBody{
		Text:                doc.Text,
		Title:               doc.Title,
		MimeType:            doc.MimeType,
		Async:               doc.Async,
		LightDocumentOutput: doc.LightDocumentOutput,
		SourceURL:           doc.SourceURL,
		Tags:                doc.Tags,
	}

	rawURL := c.apiURL(
		"spaces", url.PathEscape(doc.SpaceID),
		"data_sources", url.PathEscape(doc.DataSourceName),
		"documents", url.PathEscape(doc.DocumentID),
	)

	var resp map[string]any
	if err := c.doJSON(ctx, "upsert_document", http.MethodPost, rawURL, body, &resp); err != nil {
		return nil, err
	}

	if resp == nil {
		resp = map[string]any{}
	}

	return resp, nil
}

// ParseTags splits a comma separated tag list, trimming entries and dropping empty ones.
func ParseTags(s string) []string {
	var tags []string

	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	return tags
}
