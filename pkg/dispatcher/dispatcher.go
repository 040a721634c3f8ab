// Package dispatcher maps request paths onto the canned tarpit scenarios.
package dispatcher

import (
	"fmt"
	"strings"

	"tarpit/pkg/models"
	"tarpit/pkg/payload"

	"github.com/valyala/fasthttp"
)

// StatusBlocked is the non-standard code the gateway under simulation uses for
// both health scenarios. It must not be normalized to 429 or 403.
const StatusBlocked = 434

type Scenario int

const (
	MissingFlag Scenario = iota
	Blocked
	SlowDownload
)

func (s Scenario) String() string {
	switch s {
	case MissingFlag:
		return "missing_flag"
	case Blocked:
		return "blocked"
	case SlowDownload:
		return "slow_download"
	default:
		return fmt.Sprintf("scenario(%d)", int(s))
	}
}

// Response is a fully rendered canned response.
type Response struct {
	StatusCode  int
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// Apply copies the response onto resp. The body length always drives
// Content-Length, also for HEAD where fasthttp skips writing the body.
func (r *Response) Apply(resp *fasthttp.Response) {
	resp.SetStatusCode(r.StatusCode)
	resp.Header.SetContentType(r.ContentType)
	for k, v := range r.Headers {
		resp.Header.Set(k, v)
	}
	resp.SetBody(r.Body)
}

type Dispatcher struct {
	missing  []string
	block    []string
	fileName string
}

func NewDispatcher(scenarios *models.ScenarioConfig, slow *models.SlowDownloadConfig) *Dispatcher {
	d := &Dispatcher{
		missing:  []string{models.DEFAULT_MISSING_PREFIX},
		block:    []string{models.DEFAULT_BLOCK_PREFIX},
		fileName: models.DEFAULT_PDF_FILENAME,
	}
	if scenarios != nil {
		if len(scenarios.Missing) > 0 {
			d.missing = append([]string(nil), scenarios.Missing...)
		}
		if len(scenarios.Block) > 0 {
			d.block = append([]string(nil), scenarios.Block...)
		}
	}
	if slow != nil && slow.FileName != "" {
		d.fileName = slow.FileName
	}
	return d
}

// Select picks the scenario for a raw request path. Query strings must be
// stripped by the caller; anything unmatched falls through to SlowDownload.
func (d *Dispatcher) Select(path string) Scenario {
	if hasAnyPrefix(path, d.missing) {
		return MissingFlag
	}
	if hasAnyPrefix(path, d.block) {
		return Blocked
	}
	return SlowDownload
}

// ResponseFor renders the canned response of a scenario.
func (d *Dispatcher) ResponseFor(s Scenario) *Response {
	switch s {
	case MissingFlag:
		return &Response{
			StatusCode:  StatusBlocked,
			ContentType: "application/json",
			Body:        payload.MissingFlagJSON(),
		}
	case Blocked:
		return &Response{
			StatusCode:  StatusBlocked,
			ContentType: "application/json",
			Body:        payload.BlockedJSON(),
		}
	default:
		return &Response{
			StatusCode:  fasthttp.StatusOK,
			ContentType: "application/pdf",
			Headers: map[string]string{
				"Content-Disposition": fmt.Sprintf("attachment; filename=%q", d.fileName),
			},
			Body: payload.PDF(),
		}
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
