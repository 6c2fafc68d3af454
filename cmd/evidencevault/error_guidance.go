package main

import (
	"context"
	"errors"
	"net"

	"evidencevault/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: verify EVV_API_TOKEN and EVV_ADMIN_TOKEN configuration.")
		case "forbidden":
			lines = append(lines, "hint: the actor role may not perform this operation; check --actor and --role.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly or reduce concurrent uploads and downloads.")
		case "integrity_violation":
			lines = append(lines, "hint: stored content no longer matches its digest; the event is in the custody trail.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify EVV_API_URL points to an evidencevault server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase EVV_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an evidencevault server is running at EVV_API_URL.",
			"hint: start local server manually with: evidencevault srv",
			"hint: you can increase EVV_HTTP_TIMEOUT for slower environments.",
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
