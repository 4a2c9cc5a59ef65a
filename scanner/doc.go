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

// Package scanner implements a client for the TradingView stock screener
// scan API.
//
// A scan is a single POST request carrying a JSON description of the markets
// to search, the screening conditions, and the fields to return for each
// matching instrument. The request is assembled by Request, either from a
// JSON config (see the message package) or starting from DefaultRequest()
// and refining it with the builder methods.
//
// The response is a flat list of entries, one per instrument, each holding
// the requested field values in request order. Scan() converts this list
// into a db.Snapshot ready for persisting. Entries without usable values are
// dropped, not failed on; each dropped entry is reported in the returned
// skip list and logged as a warning. Failures of the request itself are
// classified by Error into timeouts, connection failures, HTTP status errors
// and malformed responses.
//
// Each scan is one request and one response. There is no paging and no
// retrying: the scan endpoint returns the requested row range in a single
// page, and a failed scan is simply reported.
package scanner
