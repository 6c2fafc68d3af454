package main

import (
	"net"
	"testing"

	"evidencevault/internal/api"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: ensure an evidencevault server is running at EVV_API_URL.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: start local server manually with: evidencevault srv") {
		t.Fatalf("expected manual-start guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIUnknownServiceGuidance(t *testing.T) {
	err := &api.APIError{Status: 404, Message: "api error: 404 Not Found"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify EVV_API_URL points to an evidencevault server.") {
		t.Fatalf("expected api-url guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIAuthGuidance(t *testing.T) {
	err := &api.APIError{Status: 401, Code: "unauthorized", Message: "unauthorized"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify EVV_API_TOKEN and EVV_ADMIN_TOKEN configuration.") {
		t.Fatalf("expected auth guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIForbiddenGuidance(t *testing.T) {
	err := &api.APIError{Status: 403, Code: "forbidden", Message: "ROLE_NOT_PERMITTED"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: the actor role may not perform this operation; check --actor and --role.") {
		t.Fatalf("expected role guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIInternalGuidance(t *testing.T) {
	err := &api.APIError{Status: 500, Code: "integrity_violation", Message: "integrity violation"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: server returned an internal error; check server logs for details.") {
		t.Fatalf("expected internal-error guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: stored content no longer matches its digest; the event is in the custody trail.") {
		t.Fatalf("expected integrity guidance, got %v", lines)
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
