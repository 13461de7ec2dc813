package repository

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

// stubActivityRow feeds scanActivity a fixed metadata column.
type stubActivityRow struct {
	metadata []byte
}

func (s stubActivityRow) Scan(dest ...any) error {
	*dest[0].(*uuid.UUID) = uuid.New()
	*dest[1].(*uuid.UUID) = uuid.New()
	*dest[3].(*string) = "note_added"
	*dest[4].(*string) = "Note added"
	*dest[6].(*[]byte) = s.metadata
	return nil
}

func TestScanActivity_DecodesMetadata(t *testing.T) {
	a, err := scanActivity(stubActivityRow{metadata: []byte(`{"channel":"email"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Metadata["channel"] != "email" {
		t.Fatalf("expected decoded metadata, got %+v", a.Metadata)
	}
}

func TestScanActivity_CorruptMetadataIsAnError(t *testing.T) {
	_, err := scanActivity(stubActivityRow{metadata: []byte(`{"channel":`)})
	if err == nil {
		t.Fatal("expected an error for undecodable metadata")
	}
	if !strings.Contains(err.Error(), "metadata") {
		t.Fatalf("error should name the metadata column, got %v", err)
	}
}

func TestScanActivity_NullMetadataLeftEmpty(t *testing.T) {
	a, err := scanActivity(stubActivityRow{metadata: nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.Metadata) != 0 {
		t.Fatalf("expected no metadata, got %+v", a.Metadata)
	}
}
