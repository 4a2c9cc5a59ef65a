// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/tvscan/db"
)

type contextKey int

const (
	clientContextKey contextKey = iota
	transportContextKey
)

// URL is the default scan endpoint. It may be overwritten in tests before
// calling Scan.
var URL = "https://scanner.tradingview.com/america/scan"

// requestTimeout bounds a single scan request.
const requestTimeout = 30 * time.Second

// GetClient extracts the HTTP client from the context, defaulting to
// http.DefaultClient.
func GetClient(ctx context.Context) *http.Client {
	c, ok := ctx.Value(clientContextKey).(*http.Client)
	if !ok {
		return http.DefaultClient
	}
	return c
}

// UseClient injects the HTTP client into the context. Tests use it to point
// Scan at a test server.
func UseClient(ctx context.Context, c *http.Client) context.Context {
	return context.WithValue(ctx, clientContextKey, c)
}

// Transport identifies this client to the scan server.
type Transport struct {
	UserAgent string
	Referer   string
	URL       string // overrides the package default when set
}

// DefaultTransport returns the standard browser-like identity.
func DefaultTransport() *Transport {
	return &Transport{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/113.0",
		Referer:   "https://www.tradingview.com/",
	}
}

// endpoint returns the effective scan URL.
func (t *Transport) endpoint() string {
	if t.URL != "" {
		return t.URL
	}
	return URL
}

// GetTransport extracts the transport identity from the context, defaulting
// to DefaultTransport().
func GetTransport(ctx context.Context) *Transport {
	t, ok := ctx.Value(transportContextKey).(*Transport)
	if !ok {
		return DefaultTransport()
	}
	return t
}

// UseTransport injects the transport identity into the context.
func UseTransport(ctx context.Context, t *Transport) context.Context {
	return context.WithValue(ctx, transportContextKey, t)
}

// Kind classifies scan failures.
type Kind int

const (
	ErrUnexpected Kind = iota
	ErrTimeout
	ErrConnection
	ErrHTTPStatus
	ErrParse
	ErrMissingData
	ErrNoValidRows
)

func (k Kind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrConnection:
		return "connection failed"
	case ErrHTTPStatus:
		return "HTTP error"
	case ErrParse:
		return "parse error"
	case ErrMissingData:
		return "missing data"
	case ErrNoValidRows:
		return "no valid rows"
	}
	return "unexpected error"
}

// Error is a classified scan failure.
type Error struct {
	Kind   Kind
	Status int   // HTTP status code, set for ErrHTTPStatus
	Cause  error // may be nil
}

func (e *Error) Error() string {
	s := "scan failed: " + e.Kind.String()
	if e.Kind == ErrHTTPStatus {
		s = fmt.Sprintf("%s: status %d", s, e.Status)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// AsError finds the first *Error in the wrap chain of err, if any. It walks
// the chain manually, so it works regardless of how err was annotated.
func AsError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// classifyRequestError maps an http.Client.Do failure to its Kind.
func classifyRequestError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrTimeout, err)
	}
	if uerr, ok := err.(*url.Error); ok {
		if uerr.Timeout() {
			return newError(ErrTimeout, err)
		}
		return newError(ErrConnection, err)
	}
	return newError(ErrUnexpected, err)
}

// fetchBody POSTs the scan request and returns the raw response body. It
// makes exactly one attempt.
func fetchBody(ctx context.Context, r *Request) ([]byte, error) {
	body, err := r.payload()
	if err != nil {
		return nil, newError(ErrUnexpected,
			errors.Annotate(err, "failed to encode request"))
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	t := GetTransport(ctx)
	uri := t.endpoint() + "?" + url.Values{
		"label-product": {"screener-stock"}}.Encode()
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrUnexpected,
			errors.Annotate(err, "failed to create request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	if t.Referer != "" {
		req.Header.Set("Referer", t.Referer)
	}
	logging.Debugf(ctx, "POST %s (%d bytes)", uri, len(body))
	resp, err := GetClient(ctx).Do(req)
	if err != nil {
		return nil, classifyRequestError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: ErrHTTPStatus, Status: resp.StatusCode}
	}
	res, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(ErrUnexpected,
			errors.Annotate(err, "failed to read response body"))
	}
	return res, nil
}

// scanEntry is a single instrument in the scan response.
type scanEntry struct {
	S string     `json:"s,omitempty"` // symbol, e.g. "NASDAQ:AAPL"
	D []db.Value `json:"d,omitempty"` // field values in request order
}

// scanResponse is the wire format of the scan endpoint.
type scanResponse struct {
	Data       []scanEntry `json:"data,omitempty"`
	TotalCount int         `json:"totalCount,omitempty"`
}

// TestScanResponse generates the JSON string in the format returned by the
// scan endpoint. A nil row produces an entry without values. For use in
// tests.
func TestScanResponse(symbols []string, rows []db.Row) (string, error) {
	entries := make([]scanEntry, len(rows))
	for i, r := range rows {
		entries[i] = scanEntry{D: r}
		if i < len(symbols) {
			entries[i].S = symbols[i]
		}
	}
	b, err := json.Marshal(&scanResponse{Data: entries, TotalCount: len(entries)})
	return string(b), err
}

// SkipReason says why a response entry was dropped during extraction.
type SkipReason int

const (
	SkipMissingValues SkipReason = iota // values absent or null
	SkipArity                           // wrong number of values
)

func (r SkipReason) String() string {
	if r == SkipArity {
		return "wrong number of values"
	}
	return "no values"
}

// Skip records a single dropped response entry.
type Skip struct {
	Index  int
	Reason SkipReason
}

// extract converts the raw response body into a snapshot with the given
// storage column names. Entries without usable values are dropped and
// reported in the skip list, not failed on.
func extract(ctx context.Context, body []byte, columns []string) (*db.Snapshot, []Skip, error) {
	var resp scanResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, newError(ErrParse,
			errors.Annotate(err, "failed to parse scan response"))
	}
	if len(resp.Data) == 0 {
		return nil, nil, newError(ErrMissingData,
			errors.Reason("response has no 'data' entries"))
	}
	logging.Debugf(ctx, "scan response: %d entries, total count %d",
		len(resp.Data), resp.TotalCount)
	snapshot := db.NewSnapshot(columns...)
	var skips []Skip
	for i, entry := range resp.Data {
		if entry.D == nil {
			skips = append(skips, Skip{Index: i, Reason: SkipMissingValues})
			continue
		}
		if len(entry.D) != len(columns) {
			skips = append(skips, Skip{Index: i, Reason: SkipArity})
			continue
		}
		snapshot.AddRow(db.Row(entry.D))
	}
	if len(snapshot.Rows) == 0 {
		return nil, skips, newError(ErrNoValidRows,
			errors.Reason("no valid rows in %d entries", len(resp.Data)))
	}
	return snapshot, skips, nil
}

// Scan executes the request and converts the response into a snapshot. It
// makes exactly one attempt: no retries, no paging.
func Scan(ctx context.Context, r *Request) (*db.Snapshot, error) {
	body, err := fetchBody(ctx, r)
	if err != nil {
		return nil, err
	}
	logging.Infof(ctx, "fetched %d bytes of scan results", len(body))
	snapshot, skips, err := extract(ctx, body, r.Header())
	for _, s := range skips {
		logging.Warningf(ctx, "entry %d: %s, skipping", s.Index, s.Reason)
	}
	if err != nil {
		return nil, err
	}
	logging.Infof(ctx, "extracted %d rows, skipped %d entries",
		len(snapshot.Rows), len(skips))
	return snapshot, nil
}
