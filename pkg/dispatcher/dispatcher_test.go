package dispatcher

import (
	"bytes"
	"testing"

	"tarpit/pkg/models"
	"tarpit/pkg/payload"

	"github.com/valyala/fasthttp"
)

func TestSelect_DefaultPrefixes(t *testing.T) {
	d := NewDispatcher(nil, nil)

	cases := []struct {
		path string
		want Scenario
	}{
		{"/health/missing", MissingFlag},
		{"/health/missing/extra", MissingFlag},
		{"/health/missingness", MissingFlag},
		{"/health/block", Blocked},
		{"/health/blocked/now", Blocked},
		{"/health", SlowDownload},
		{"/health/", SlowDownload},
		{"/", SlowDownload},
		{"/foo/bar", SlowDownload},
		{"/download", SlowDownload},
		{"/report.pdf", SlowDownload},
		{"", SlowDownload},
		{"/HEALTH/block", SlowDownload},
	}

	for _, tc := range cases {
		if got := d.Select(tc.path); got != tc.want {
			t.Errorf("Select(%q): expected %s, got %s", tc.path, tc.want, got)
		}
	}
}

func TestSelect_MissingCheckedBeforeBlock(t *testing.T) {
	d := NewDispatcher(&models.ScenarioConfig{
		Missing: []string{"/x"},
		Block:   []string{"/x"},
	}, nil)

	if got := d.Select("/x/y"); got != MissingFlag {
		t.Errorf("Expected missing prefixes to win, got %s", got)
	}
}

func TestSelect_CustomPrefixes(t *testing.T) {
	d := NewDispatcher(&models.ScenarioConfig{
		Missing: []string{"/status/ok", "/ready/ok"},
		Block:   []string{"/status/deny"},
	}, nil)

	if got := d.Select("/ready/ok?x=1"); got != MissingFlag {
		t.Errorf("Expected missing_flag, got %s", got)
	}
	if got := d.Select("/status/deny"); got != Blocked {
		t.Errorf("Expected blocked, got %s", got)
	}
	if got := d.Select("/health/block"); got != SlowDownload {
		t.Errorf("Default prefix should be replaced by config, got %s", got)
	}
}

func TestScenario_String(t *testing.T) {
	if MissingFlag.String() != "missing_flag" || Blocked.String() != "blocked" || SlowDownload.String() != "slow_download" {
		t.Error("Unexpected scenario names")
	}
	if Scenario(9).String() != "scenario(9)" {
		t.Errorf("Unexpected name for unknown scenario: %s", Scenario(9))
	}
}

func TestResponseFor_HealthScenarios(t *testing.T) {
	d := NewDispatcher(nil, nil)

	missing := d.ResponseFor(MissingFlag)
	if missing.StatusCode != 434 {
		t.Errorf("Expected 434, got %d", missing.StatusCode)
	}
	if missing.ContentType != "application/json" {
		t.Errorf("Expected application/json, got %s", missing.ContentType)
	}
	if !bytes.Equal(missing.Body, payload.MissingFlagJSON()) {
		t.Errorf("Unexpected body %s", missing.Body)
	}

	blocked := d.ResponseFor(Blocked)
	if blocked.StatusCode != 434 {
		t.Errorf("Expected 434, got %d", blocked.StatusCode)
	}
	if !bytes.Equal(blocked.Body, payload.BlockedJSON()) {
		t.Errorf("Unexpected body %s", blocked.Body)
	}
}

func TestResponseFor_SlowDownload(t *testing.T) {
	d := NewDispatcher(nil, nil)
	r := d.ResponseFor(SlowDownload)

	if r.StatusCode != fasthttp.StatusOK {
		t.Errorf("Expected 200, got %d", r.StatusCode)
	}
	if r.ContentType != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", r.ContentType)
	}
	if got := r.Headers["Content-Disposition"]; got != `attachment; filename="test_delay.pdf"` {
		t.Errorf("Unexpected Content-Disposition %q", got)
	}
	if !bytes.Equal(r.Body, payload.PDF()) {
		t.Error("Body must equal the canned PDF")
	}
}

func TestResponseFor_CustomFileName(t *testing.T) {
	d := NewDispatcher(nil, &models.SlowDownloadConfig{FileName: "stalled.pdf"})
	r := d.ResponseFor(SlowDownload)

	if got := r.Headers["Content-Disposition"]; got != `attachment; filename="stalled.pdf"` {
		t.Errorf("Unexpected Content-Disposition %q", got)
	}
}

func TestResponse_Apply(t *testing.T) {
	d := NewDispatcher(nil, nil)
	var resp fasthttp.Response

	d.ResponseFor(SlowDownload).Apply(&resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode())
	}
	if string(resp.Header.ContentType()) != "application/pdf" {
		t.Errorf("Unexpected content type %s", resp.Header.ContentType())
	}
	if string(resp.Header.Peek("Content-Disposition")) != `attachment; filename="test_delay.pdf"` {
		t.Errorf("Unexpected Content-Disposition %s", resp.Header.Peek("Content-Disposition"))
	}
	if len(resp.Body()) != payload.PDFLen() {
		t.Errorf("Expected body length %d, got %d", payload.PDFLen(), len(resp.Body()))
	}
}

func TestResponse_ApplyKeepsStatus434(t *testing.T) {
	d := NewDispatcher(nil, nil)
	var resp fasthttp.Response

	d.ResponseFor(Blocked).Apply(&resp)

	if resp.StatusCode() != StatusBlocked {
		t.Errorf("Expected 434, got %d", resp.StatusCode())
	}
}
