package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"evidencevault/internal/api"
	"evidencevault/internal/format"
	"evidencevault/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeEvidenceDetail(w io.Writer, item api.EvidenceResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", item.ID),
		fmt.Sprintf("case_id: %s", item.CaseID),
		fmt.Sprintf("filename: %s", item.OriginalFilename),
		fmt.Sprintf("content_type: %s", item.ContentType),
		fmt.Sprintf("size_bytes: %d", item.FileSizeBytes),
		fmt.Sprintf("status: %s", item.LifecycleStatus),
		fmt.Sprintf("uploaded_by: %s (%s)", item.UploaderID, item.UploaderRole),
		fmt.Sprintf("uploaded_at: %s", formatTime(item.UploadTimestamp)),
		fmt.Sprintf("updated_at: %s", formatTime(item.UpdatedAt)),
	}
	if item.Width > 0 && item.Height > 0 {
		lines = append(lines, fmt.Sprintf("dimensions: %dx%d", item.Width, item.Height))
	}
	if item.ContentHash != "" {
		lines = append(lines, fmt.Sprintf("content_hash: %s:%s", item.HashAlgorithm, item.ContentHash))
	}
	if item.StorageBackend != "" {
		lines = append(lines, fmt.Sprintf("storage_backend: %s", item.StorageBackend))
	}
	if item.StorageKey == "" && item.LifecycleStatus == models.StatusDeleted {
		lines = append(lines, "bytes: purged")
	}

	_, err := fmt.Fprintf(w, "%s\n", strings.Join(lines, "\n"))
	return err
}

func writeEvidenceList(w io.Writer, items []api.EvidenceResponse) error {
	for _, item := range items {
		if _, err := fmt.Fprintln(w, formatEvidenceLine(item)); err != nil {
			return err
		}
	}
	return nil
}

func formatEvidenceLine(item api.EvidenceResponse) string {
	return fmt.Sprintf("%s [%s] %s (%d bytes)", item.ID, item.LifecycleStatus, item.OriginalFilename, item.FileSizeBytes)
}

func writeCustodyLines(w io.Writer, events []models.CustodyEvent) error {
	for _, ev := range events {
		if _, err := fmt.Fprintln(w, formatCustodyLine(ev)); err != nil {
			return err
		}
	}
	return nil
}

func formatCustodyLine(ev models.CustodyEvent) string {
	line := fmt.Sprintf("#%d %s %s/%s by %s (%s)", ev.Sequence, formatTime(ev.Timestamp), ev.Action, ev.Outcome, ev.ActorID, ev.ActorRole)
	if ev.ClientOrigin != "" {
		line += " from " + ev.ClientOrigin
	}
	if ev.Reason != "" {
		line += fmt.Sprintf(" reason=%q", ev.Reason)
	}
	return line
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
