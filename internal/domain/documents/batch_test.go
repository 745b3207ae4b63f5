package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/folio/internal/platform/blobstore"
)

// -- Fake Source --

type fakeSource struct {
	name        string
	contentType string
	body        string
	released    int
}

func (f *fakeSource) Name() string        { return f.name }
func (f *fakeSource) ContentType() string { return f.contentType }
func (f *fakeSource) Size() int64         { return int64(len(f.body)) }
func (f *fakeSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.body)), nil
}
func (f *fakeSource) Release(context.Context) error {
	f.released++
	return nil
}

func pdf(name string) *fakeSource {
	return &fakeSource{name: name, contentType: "application/pdf", body: "%PDF"}
}

func newBatch() *Batch {
	return NewBatch(zerolog.Nop())
}

// -- Catalog --

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"12", "12", true},
		{"12 - ORDENES MEDICAS", "12", true},
		{"  3 CONSENTIMIENTO", "3", true},
		{"03", "3", true},
		{"7", "", false},
		{"99", "", false},
		{"ORDENES", "", false},
		{"", "", false},
		{"1234", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeCode(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("NormalizeCode(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCatalog(t *testing.T) {
	c := Catalog()
	if len(c) != 16 {
		t.Fatalf("expected 16 codes, got %d", len(c))
	}
	if _, ok := Lookup("7"); ok {
		t.Error("code 7 must not be in the catalog")
	}
	tc, ok := Lookup("12")
	if !ok || tc.Label != "ORDENES MEDICAS" {
		t.Errorf("unexpected entry for 12: %+v", tc)
	}
	c[0].Label = "changed"
	if tc, _ := Lookup("1"); tc.Label == "changed" {
		t.Error("Catalog must return a copy")
	}
}

// -- Attach --

func TestIsAcceptedDocument(t *testing.T) {
	tests := []struct {
		name, ct string
		want     bool
	}{
		{"scan.pdf", "", true},
		{"SCAN.PDF", "application/octet-stream", true},
		{"scan", "application/pdf", true},
		{"scan.bin", "application/pdf; charset=binary", true},
		{"photo.jpg", "image/jpeg", false},
		{"notes.txt", "text/plain", false},
	}
	for _, tt := range tests {
		if got := IsAcceptedDocument(tt.name, tt.ct); got != tt.want {
			t.Errorf("IsAcceptedDocument(%q, %q) = %v, want %v", tt.name, tt.ct, got, tt.want)
		}
	}
}

func TestBatch_AttachReportsRejections(t *testing.T) {
	b := newBatch()
	var sources []Source
	sources = append(sources, pdf("a.pdf"))
	var rejected []*fakeSource
	for i := 0; i < 12; i++ {
		r := &fakeSource{name: fmt.Sprintf("img%d.png", i), contentType: "image/png"}
		rejected = append(rejected, r)
		sources = append(sources, r)
	}
	sources = append(sources, pdf("b.pdf"))

	res := b.Attach(context.Background(), sources...)
	if len(res.Accepted) != 2 {
		t.Fatalf("expected 2 accepted, got %d", len(res.Accepted))
	}
	if res.RejectedCount != 12 {
		t.Errorf("expected 12 rejected, got %d", res.RejectedCount)
	}
	if len(res.RejectedSamples) != 10 {
		t.Errorf("expected 10 samples, got %d", len(res.RejectedSamples))
	}
	if rejected[0].released != 1 {
		t.Error("expected rejected source to be released")
	}

	list := b.List()
	if list[0].Name != "a.pdf" || list[1].Name != "b.pdf" {
		t.Errorf("expected attachment order preserved, got %s, %s", list[0].Name, list[1].Name)
	}
}

// -- SetTypeCode / Remove / ValidateAll --

func TestBatch_SetTypeCode(t *testing.T) {
	b := newBatch()
	res := b.Attach(context.Background(), pdf("a.pdf"))
	id := res.Accepted[0].ID

	code, err := b.SetTypeCode(id, "13 EVOLUCION MEDICA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != "13" {
		t.Errorf("expected 13, got %s", code)
	}

	if _, err := b.SetTypeCode(id, "7"); !errors.Is(err, ErrInvalidTypeCode) {
		t.Errorf("expected ErrInvalidTypeCode, got %v", err)
	}
	if got := b.List()[0].TypeCode; got != "" {
		t.Errorf("expected invalid input to clear the code, got %q", got)
	}

	if _, err := b.SetTypeCode("missing", "1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestBatch_RemoveReleasesSource(t *testing.T) {
	b := newBatch()
	src := pdf("a.pdf")
	res := b.Attach(context.Background(), src, pdf("b.pdf"))

	if err := b.Remove(context.Background(), res.Accepted[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.released != 1 {
		t.Error("expected source released")
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 document left, got %d", b.Len())
	}
	if err := b.Remove(context.Background(), res.Accepted[0].ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestBatch_ValidateAll(t *testing.T) {
	b := newBatch()
	res := b.Attach(context.Background(), pdf("a.pdf"), pdf("b.pdf"), pdf("c.pdf"))
	b.SetTypeCode(res.Accepted[0].ID, "12")
	b.SetTypeCode(res.Accepted[2].ID, "bogus")

	invalid := b.ValidateAll()
	if len(invalid) != 2 {
		t.Fatalf("expected 2 invalid documents, got %d", len(invalid))
	}
	if invalid[0].Name != "b.pdf" || invalid[1].Name != "c.pdf" {
		t.Errorf("unexpected invalid set: %+v", invalid)
	}

	b.SetTypeCode(res.Accepted[1].ID, "3")
	b.SetTypeCode(res.Accepted[2].ID, "3")
	if invalid := b.ValidateAll(); len(invalid) != 0 {
		t.Errorf("expected valid batch, got %+v", invalid)
	}
}

func TestBatch_ClearReleasesAll(t *testing.T) {
	b := newBatch()
	s1, s2 := pdf("a.pdf"), pdf("b.pdf")
	b.Attach(context.Background(), s1, s2)
	b.Clear(context.Background())
	if b.Len() != 0 {
		t.Error("expected empty batch")
	}
	if s1.released != 1 || s2.released != 1 {
		t.Error("expected every source released")
	}
}

func TestBatch_AssignFrozenAfterAcceptance(t *testing.T) {
	b := newBatch()
	res := b.Attach(context.Background(), pdf("a.pdf"))
	id := res.Accepted[0].ID

	b.Assign(id, 1, `\\srv\dir`, "12-1-CC-9-1.pdf")
	b.MarkRecordAccepted(id)
	b.Assign(id, 5, `\\other`, "x.pdf")

	d := b.List()[0]
	if d.SequenceNumber != 1 || d.DestinationDir != `\\srv\dir` || d.FileName != "12-1-CC-9-1.pdf" {
		t.Errorf("expected accepted values frozen, got %+v", d)
	}
}

func TestBatch_AcceptedDocumentIsLocked(t *testing.T) {
	b := newBatch()
	src := pdf("a.pdf")
	res := b.Attach(context.Background(), src, pdf("b.pdf"))
	id := res.Accepted[0].ID
	b.SetTypeCode(id, "12")
	b.Assign(id, 1, `\\srv\ordenes`, "12-1-CC-9-1.pdf")
	b.MarkRecordAccepted(id)

	code, err := b.SetTypeCode(id, "3")
	if !errors.Is(err, ErrRecordAccepted) {
		t.Fatalf("expected ErrRecordAccepted, got %v", err)
	}
	if code != "12" || b.List()[0].TypeCode != "12" {
		t.Errorf("expected code 12 kept, got %q / %q", code, b.List()[0].TypeCode)
	}

	if err := b.Remove(context.Background(), id); !errors.Is(err, ErrRecordAccepted) {
		t.Fatalf("expected ErrRecordAccepted, got %v", err)
	}
	if b.Len() != 2 || src.released != 0 {
		t.Errorf("expected accepted document kept and not released, len=%d released=%d", b.Len(), src.released)
	}

	if _, err := b.SetTypeCode(res.Accepted[1].ID, "3"); err != nil {
		t.Errorf("expected pending document editable, got %v", err)
	}
	if err := b.Remove(context.Background(), res.Accepted[1].ID); err != nil {
		t.Errorf("expected pending document removable, got %v", err)
	}
}

// -- Sequence numbering --

func TestAssignSequenceNumbers_Scenario(t *testing.T) {
	docs := []Document{{TypeCode: "12"}, {TypeCode: "12"}, {TypeCode: "3"}}
	AssignSequenceNumbers(docs)

	want := []int{1, 2, 1}
	for i, d := range docs {
		if d.SequenceNumber != want[i] {
			t.Errorf("doc %d: expected %d, got %d", i, want[i], d.SequenceNumber)
		}
	}
}

func TestAssignSequenceNumbers_GapFreePerCode(t *testing.T) {
	codes := []string{"1", "2", "3", "12", "13"}
	r := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := r.Intn(30)
		docs := make([]Document, n)
		for i := range docs {
			docs[i].TypeCode = codes[r.Intn(len(codes))]
		}
		AssignSequenceNumbers(docs)

		seen := make(map[string]int)
		for i, d := range docs {
			seen[d.TypeCode]++
			if d.SequenceNumber != seen[d.TypeCode] {
				t.Fatalf("trial %d doc %d code %s: expected %d, got %d",
					trial, i, d.TypeCode, seen[d.TypeCode], d.SequenceNumber)
			}
		}
	}
}

func TestAssignSequenceNumbers_KeepsAccepted(t *testing.T) {
	docs := []Document{
		{TypeCode: "12", SequenceNumber: 1, RecordAccepted: true},
		{TypeCode: "12"},
		{TypeCode: "3"},
	}
	AssignSequenceNumbers(docs)
	if docs[0].SequenceNumber != 1 || docs[1].SequenceNumber != 2 || docs[2].SequenceNumber != 1 {
		t.Errorf("unexpected numbering: %d %d %d", docs[0].SequenceNumber, docs[1].SequenceNumber, docs[2].SequenceNumber)
	}
}

// -- Sources --

func TestBlobSource(t *testing.T) {
	store := blobstore.NewInMemoryBlobStore()
	meta, err := store.Upload(context.Background(), blobstore.BlobMetadata{FileName: "a.pdf", ContentType: "application/pdf"}, strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src := NewBlobSource(store, *meta)

	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.4" {
		t.Errorf("unexpected content %q", data)
	}

	if err := src.Release(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 0 {
		t.Error("expected staged blob deleted on release")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orden.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "orden.pdf" || src.Size() != 4 {
		t.Errorf("unexpected source: %s %d", src.Name(), src.Size())
	}
	if src.ContentType() != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", src.ContentType())
	}

	if _, err := NewFileSource(t.TempDir()); err == nil {
		t.Error("expected error for directory")
	}
}
