package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func BenchmarkUpload(b *testing.B) {
	ts := newTestServer(b)
	payload := bytes.Repeat([]byte("evidence"), 8<<10) // 64 KiB

	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := ts.do(b, newUploadRequest(b, "BENCH", "frame.bin", payload))
		if w.Code != http.StatusCreated {
			b.Fatalf("upload: status %d", w.Code)
		}
	}
}

func BenchmarkDownload(b *testing.B) {
	ts := newTestServer(b)
	payload := bytes.Repeat([]byte("evidence"), 8<<10)
	id := ts.upload(b, "BENCH", "frame.bin", payload)

	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := ts.do(b, httptest.NewRequest(http.MethodGet, "/api/v1/images/"+id+"/download", nil))
		if w.Code != http.StatusOK {
			b.Fatalf("download: status %d", w.Code)
		}
	}
}

func BenchmarkCustodyTrail(b *testing.B) {
	ts := newTestServer(b)
	id := ts.upload(b, "BENCH", "frame.bin", []byte("payload"))
	for i := 0; i < 200; i++ {
		w := ts.do(b, httptest.NewRequest(http.MethodGet, "/api/v1/images/"+id+"/download", nil))
		if w.Code != http.StatusOK {
			b.Fatalf("seed download: status %d", w.Code)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		events := ts.custody(b, id)
		if len(events) == 0 {
			b.Fatal("custody returned no events")
		}
	}
}
