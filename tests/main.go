package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// Probes a running tarpit the way a download client with a short timeout
// would, and prints what that client observes for each scenario.
func main() {
	base := flag.String("base", "http://127.0.0.1:8765", "tarpit base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "client timeout")
	flag.Parse()

	client := &fasthttp.Client{Name: "tarpit-probe"}
	failed := false

	for _, path := range []string{"/health/missing", "/health/block", "/download?url=https://example.com/report.pdf"} {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.SetRequestURI(*base + path)

		start := time.Now()
		err := client.DoTimeout(req, resp, *timeout)
		elapsed := time.Since(start).Round(time.Millisecond)

		switch {
		case errors.Is(err, fasthttp.ErrTimeout):
			fmt.Printf("%-50s timeout after %s (client timeout path triggered)\n", path, elapsed)
		case err != nil:
			fmt.Printf("%-50s error: %v\n", path, err)
			failed = true
		case resp.StatusCode() == 434:
			var body map[string]any
			if err := json.Unmarshal(resp.Body(), &body); err != nil {
				fmt.Printf("%-50s 434 with unparsable body %q\n", path, resp.Body())
				failed = true
				break
			}
			if ext1, ok := body["ext1"].(bool); ok && ext1 {
				fmt.Printf("%-50s 434 ext1=true -> client should treat as blocked\n", path)
			} else {
				fmt.Printf("%-50s 434 without ext1 -> client should pass the check\n", path)
			}
		default:
			fmt.Printf("%-50s %d %s, %d bytes after %s\n", path, resp.StatusCode(), resp.Header.ContentType(), len(resp.Body()), elapsed)
		}

		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	if failed {
		os.Exit(1)
	}
}
