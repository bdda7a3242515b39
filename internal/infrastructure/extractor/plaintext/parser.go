// Package plaintext parses text-like uploads: plain text, markdown and
// anything else that is valid UTF-8. Binary formats are rejected at ingest
// instead of failing later in the worker.
package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/akarpov/ragindex/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, raw []byte, mimeType string) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrParse, "parse document",
			fmt.Errorf("content is not valid UTF-8 (mime type %q)", mimeType))
	}

	return domain.NormalizeContent(string(raw)), nil
}
