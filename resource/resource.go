// resource/resource.go

// Package resource implements the generic collection proxy: list, get,
// create, update, and delete over an upstream tabular REST API, translated
// from a simple page/filter contract into the upstream's range-pagination and
// predicate dialect. The algorithms are written once and parametrized per
// collection by a Descriptor.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dalemusser/gestorbff/apperr"
	"github.com/dalemusser/gestorbff/supabase"
	"github.com/dalemusser/gestorbff/textfold"
)

// Page bounds for list queries.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// maxQueryLen caps the free-text filter; anything longer is truncated
	// before it reaches the upstream predicate.
	maxQueryLen = 200
)

// Descriptor declares one proxied collection. All fields except the filter
// columns are required.
type Descriptor struct {
	// Name is the upstream collection (table) name and the URL path segment.
	Name string

	// Label names a single record in user-facing messages ("Client", "Task").
	Label string

	// OrderBy is the default sort column for list queries.
	OrderBy string

	// SearchColumns are matched case-insensitively against the free-text
	// filter, combined with OR. Empty means the collection has no text search.
	SearchColumns []string

	// StatusColumn enables the equality status filter when non-empty.
	StatusColumn string

	// DateColumn enables the bounded date-window filter when non-empty.
	DateColumn string

	// TerminalStatus is the value Complete writes into StatusColumn.
	TerminalStatus string
}

// Filters carries the logical list filters. Zero values contribute no
// upstream predicate.
type Filters struct {
	Q        string
	Status   string
	DateFrom string
	DateTo   string
}

// Page is one page of records plus pagination metadata. Total is the size of
// the filtered collection at query time, not the page length.
type Page struct {
	Items    []json.RawMessage `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// Service proxies one collection through the shared upstream client.
type Service struct {
	client *supabase.Client
	desc   Descriptor
}

// NewService builds a Service for the given collection.
func NewService(client *supabase.Client, desc Descriptor) *Service {
	return &Service{client: client, desc: desc}
}

// Descriptor returns the collection descriptor.
func (s *Service) Descriptor() Descriptor {
	return s.desc
}

// List fetches one page. page and pageSize are clamped into their valid
// ranges (page ≥ 1, 1 ≤ pageSize ≤ 100) so callers can pass user input
// directly.
func (s *Service) List(ctx context.Context, token string, page, pageSize int, f Filters) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	start := (page - 1) * pageSize
	end := start + pageSize - 1

	params := url.Values{}
	params.Set("select", "*")
	params.Set("order", s.desc.OrderBy)
	s.applyFilters(params, f)

	headers := http.Header{}
	headers.Set("Range", fmt.Sprintf("%d-%d", start, end))
	headers.Set("Prefer", "count=exact")

	resp, err := s.client.Rest(ctx, http.MethodGet, s.desc.Name, token, params, nil, headers)
	if err != nil {
		return nil, err
	}

	items, err := decodeRecords(resp.Data)
	if err != nil {
		return nil, err
	}

	return &Page{
		Items:    items,
		Total:    parseTotal(resp.Header.Get("Content-Range")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Get fetches one record by id; an empty upstream result is a 404.
func (s *Service) Get(ctx context.Context, token, id string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("id", "eq."+id)

	headers := http.Header{}
	headers.Set("Range", "0-0")

	resp, err := s.client.Rest(ctx, http.MethodGet, s.desc.Name, token, params, nil, headers)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(resp.Data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.NotFound(s.desc.Label + " not found")
	}
	return records[0], nil
}

// Create inserts a record and returns the stored representation. The
// upstream echoes created rows as a one-element array; an empty array means
// it accepted the write but returned nothing, which is an upstream fault,
// not a client one.
func (s *Service) Create(ctx context.Context, token string, record map[string]any) (json.RawMessage, error) {
	headers := http.Header{}
	headers.Set("Prefer", "return=representation")

	resp, err := s.client.Rest(ctx, http.MethodPost, s.desc.Name, token, nil, []map[string]any{record}, headers)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(resp.Data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.BadUpstream("Supabase returned no data for the created " + strings.ToLower(s.desc.Label))
	}
	return records[0], nil
}

// Update applies a partial update: only the fields present in record are
// submitted. An empty result means no row matched the id.
func (s *Service) Update(ctx context.Context, token, id string, record map[string]any) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("id", "eq."+id)

	headers := http.Header{}
	headers.Set("Prefer", "return=representation")

	resp, err := s.client.Rest(ctx, http.MethodPatch, s.desc.Name, token, params, record, headers)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(resp.Data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.NotFound(s.desc.Label + " not found")
	}
	return records[0], nil
}

// Delete removes a record by id. The upstream does not report whether a row
// matched, so a delete of a missing id succeeds.
func (s *Service) Delete(ctx context.Context, token, id string) error {
	params := url.Values{}
	params.Set("id", "eq."+id)

	_, err := s.client.Rest(ctx, http.MethodDelete, s.desc.Name, token, params, nil, nil)
	return err
}

// Complete marks a record finished by writing the terminal status value.
func (s *Service) Complete(ctx context.Context, token, id string) (json.RawMessage, error) {
	if s.desc.StatusColumn == "" || s.desc.TerminalStatus == "" {
		return nil, apperr.NotFound("The requested resource was not found")
	}
	return s.Update(ctx, token, id, map[string]any{s.desc.StatusColumn: s.desc.TerminalStatus})
}

// applyFilters translates Filters into upstream predicates. Unset filters
// contribute nothing.
func (s *Service) applyFilters(params url.Values, f Filters) {
	if q := normalizeQuery(f.Q); q != "" && len(s.desc.SearchColumns) > 0 {
		parts := make([]string, 0, len(s.desc.SearchColumns))
		for _, col := range s.desc.SearchColumns {
			parts = append(parts, col+".ilike.*"+q+"*")
		}
		params.Set("or", "("+strings.Join(parts, ",")+")")
	}

	if f.Status != "" && s.desc.StatusColumn != "" {
		params.Set(s.desc.StatusColumn, "eq."+f.Status)
	}

	if s.desc.DateColumn != "" {
		switch {
		case f.DateFrom != "" && f.DateTo != "":
			params.Set("and", "("+s.desc.DateColumn+".gte."+f.DateFrom+","+s.desc.DateColumn+".lte."+f.DateTo+")")
		case f.DateFrom != "":
			params.Set(s.desc.DateColumn, "gte."+f.DateFrom)
		case f.DateTo != "":
			params.Set(s.desc.DateColumn, "lte."+f.DateTo)
		}
	}
}

// normalizeQuery prepares the free-text filter for the ilike predicate:
// trims, lowercases and strips accents so "José" matches "jose", truncates
// to maxQueryLen, and removes the characters that delimit the upstream's
// grouping syntax.
func normalizeQuery(q string) string {
	q = strings.TrimSpace(textfold.Fold(q))
	if len(q) > maxQueryLen {
		q = q[:maxQueryLen]
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')':
			return -1
		}
		return r
	}, q)
}

// decodeRecords decodes an upstream list payload. Anything that is not a
// JSON array of records is an upstream fault.
func decodeRecords(data json.RawMessage) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, apperr.BadUpstream("Invalid response from Supabase").Wrap(err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// parseTotal extracts the collection size from a Content-Range header of the
// form "<start>-<end>/<total>". A missing or malformed header yields 0.
func parseTotal(contentRange string) int {
	_, totalPart, found := strings.Cut(contentRange, "/")
	if !found {
		return 0
	}
	total, err := strconv.Atoi(strings.TrimSpace(totalPart))
	if err != nil || total < 0 {
		return 0
	}
	return total
}
