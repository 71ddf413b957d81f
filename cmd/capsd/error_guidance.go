package main

import (
	"context"
	"errors"
	"net"

	"capsd/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify CAPSD_SUBJECT and CAPSD_ADMIN_TOKEN configuration.")
		case "quota_exceeded":
			lines = append(lines, "hint: a per-subject quota is exhausted; cancel stale upload sessions or remove unused memories.")
		case "upload_expired":
			lines = append(lines, "hint: the upload session expired; start the upload again.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify CAPSD_API_URL points to a capsd server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CAPSD_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a capsd server is running at CAPSD_API_URL.",
			"hint: start local server manually with: capsd srv",
			"hint: you can increase CAPSD_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
