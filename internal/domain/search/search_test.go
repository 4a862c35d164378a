package search

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
)

func TestResult_Expired(t *testing.T) {
	found := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewResult("id-1", artifact.New("ip", "1.1.1.1"), nil, found, time.Second)

	if r.Expired(found) {
		t.Error("fresh result must not be expired")
	}
	if r.Expired(found.Add(999 * time.Millisecond)) {
		t.Error("result must be visible before the TTL elapses")
	}
	if !r.Expired(found.Add(time.Second)) {
		t.Error("result must expire exactly at found_at + ttl")
	}
	if !r.Expired(found.Add(2 * time.Second)) {
		t.Error("result must stay expired")
	}
	if r.Hit() == nil || r.Hit().Len() != 0 {
		t.Error("nil hit must be stored as the empty hit")
	}
}

func TestNewest(t *testing.T) {
	base := time.Now()
	key := artifact.New("ip", "1.1.1.1")
	results := []Result{
		NewResult("a", key, nil, base, time.Hour),
		NewResult("b", key, nil, base.Add(2*time.Second), time.Hour),
		NewResult("c", key, nil, base.Add(time.Second), time.Hour),
	}

	got, ok := Newest(results)
	if !ok {
		t.Fatal("expected a result")
	}
	if got.SearchID() != "b" {
		t.Errorf("Newest() = %q, want b", got.SearchID())
	}

	if _, ok := Newest(nil); ok {
		t.Error("Newest(nil) must report false")
	}
}

func TestLookup_Validate(t *testing.T) {
	key := artifact.New("net.uri", "https://x.test")
	tests := []struct {
		name    string
		lookup  Lookup
		wantErr error
	}{
		{"by id", ByID("abc"), nil},
		{"by artifact", ByArtifact(key), nil},
		{"neither", Lookup{}, domain.ErrMissingLookupCriteria},
		{"both", NewLookup("abc", key), domain.ErrAmbiguousLookupCriteria},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lookup.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponse_Pending(t *testing.T) {
	r, err := NewPendingResponse("abc", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Pending() {
		t.Error("expected pending")
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":"abc","retry_secs":30}` {
		t.Errorf("got %s", data)
	}
}

func TestResponse_Hits(t *testing.T) {
	h, _ := hit.New(hit.URIProperty("reputation", "clean"))
	r, err := NewHitsResponse("abc", h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"abc","hits":[{"type":"uri","name":"reputation","value":"clean"}]}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestResponse_EmptyHits(t *testing.T) {
	r, err := NewHitsResponse("abc", hit.Empty())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := json.Marshal(r)
	if string(data) != `{"id":"abc","hits":[]}` {
		t.Errorf("got %s", data)
	}
}

func TestResponse_Invalid(t *testing.T) {
	if _, err := NewPendingResponse("", 30); !errors.Is(err, domain.ErrInvalidResponse) {
		t.Errorf("missing id: %v", err)
	}
	if _, err := NewPendingResponse("abc", 0); !errors.Is(err, domain.ErrInvalidResponse) {
		t.Errorf("zero retry: %v", err)
	}
	if _, err := NewHitsResponse("abc", nil); !errors.Is(err, domain.ErrInvalidResponse) {
		t.Errorf("nil hits: %v", err)
	}
	if _, err := json.Marshal(Response{}); !errors.Is(err, domain.ErrInvalidResponse) {
		t.Errorf("zero response marshal: %v", err)
	}
}

func TestResponse_UnmarshalJSON(t *testing.T) {
	var r Response
	if err := json.Unmarshal([]byte(`{"id":"abc","hits":[]}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h, ok := r.Hits(); !ok || h.Len() != 0 {
		t.Errorf("Hits() = %v, %v", h, ok)
	}

	if err := json.Unmarshal([]byte(`{"id":"abc","retry_secs":5}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if secs, ok := r.RetrySecs(); !ok || secs != 5 {
		t.Errorf("RetrySecs() = %d, %v", secs, ok)
	}

	for _, payload := range []string{
		`{"id":"abc"}`,
		`{"retry_secs":5}`,
		`{"id":"abc","retry_secs":5,"hits":[]}`,
	} {
		var bad Response
		if err := json.Unmarshal([]byte(payload), &bad); !errors.Is(err, domain.ErrInvalidResponse) {
			t.Errorf("%s: expected ErrInvalidResponse, got %v", payload, err)
		}
	}
}

func TestAttachment_Release(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	a := &Attachment{Path: path, Size: 4}

	f, err := a.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = f.Close()

	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if err := a.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}

	var nilAttachment *Attachment
	if err := nilAttachment.Release(); err != nil {
		t.Errorf("nil Release: %v", err)
	}
}
