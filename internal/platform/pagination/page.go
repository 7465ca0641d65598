// Package pagination normalizes page sizes and encodes offset page tokens.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int, cfg PageSizeConfig) int {
	pageSize := value
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// PageToken is an opaque cursor into an ordered result set. Checksum binds the
// token to the query that produced it so a token cannot be replayed against a
// different filter.
type PageToken struct {
	Offset   int    `json:"o"`
	Checksum uint32 `json:"c"`
}

// Checksum hashes the query parts a token must stay bound to.
func Checksum(parts ...string) uint32 {
	return crc32.ChecksumIEEE([]byte(strings.Join(parts, "\x1f")))
}

// String encodes the token for transport.
func (t PageToken) String() string {
	data, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(data)
}

// ParsePageToken decodes a token and verifies it belongs to the query with
// the given checksum. An empty token is the first page.
func ParsePageToken(value string, checksum uint32) (PageToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return PageToken{Checksum: checksum}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return PageToken{}, fmt.Errorf("decode page token: %w", err)
	}
	var token PageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return PageToken{}, fmt.Errorf("decode page token: %w", err)
	}
	if token.Offset < 0 {
		return PageToken{}, fmt.Errorf("invalid page token offset: %d", token.Offset)
	}
	if token.Checksum != checksum {
		return PageToken{}, fmt.Errorf("page token does not match request")
	}
	return token, nil
}

// Next returns the token for the page after one of the given size, or the
// empty string when total is exhausted.
func (t PageToken) Next(pageSize, total int) string {
	next := t.Offset + pageSize
	if next >= total {
		return ""
	}
	return PageToken{Offset: next, Checksum: t.Checksum}.String()
}
