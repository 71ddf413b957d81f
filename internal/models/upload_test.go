package models

import (
	"testing"
	"time"
)

func TestChunkBitmapMarkAndCount(t *testing.T) {
	session := &UploadSession{ChunkCount: 10, Bitmap: NewChunkBitmap(10)}

	if session.Complete() {
		t.Fatal("empty session must not be complete")
	}

	order := []int{7, 0, 9, 3, 5, 1, 8, 2, 4, 6}
	for i, index := range order {
		if session.ChunkReceived(index) {
			t.Fatalf("chunk %d reported received before mark", index)
		}
		session.MarkChunkReceived(index)
		if !session.ChunkReceived(index) {
			t.Fatalf("chunk %d not received after mark", index)
		}
		if got := session.ReceivedCount(); got != i+1 {
			t.Fatalf("received count = %d, want %d", got, i+1)
		}
	}

	if !session.Complete() {
		t.Fatal("session with all chunks must be complete")
	}
}

func TestChunkBitmapOutOfRange(t *testing.T) {
	session := &UploadSession{ChunkCount: 3, Bitmap: NewChunkBitmap(3)}

	session.MarkChunkReceived(-1)
	session.MarkChunkReceived(3)
	session.MarkChunkReceived(100)

	if got := session.ReceivedCount(); got != 0 {
		t.Fatalf("out-of-range marks must be ignored, received count = %d", got)
	}
	if session.ChunkReceived(-1) || session.ChunkReceived(3) {
		t.Fatal("out-of-range indices must report not received")
	}
}

func TestUploadSessionExpiry(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	session := &UploadSession{CreatedAt: created}
	timeout := 30 * time.Minute

	if session.Expired(created.Add(timeout), timeout) {
		t.Fatal("session must not be expired exactly at the deadline")
	}
	if !session.Expired(created.Add(timeout+time.Second), timeout) {
		t.Fatal("session must be expired one unit past the deadline")
	}
}

func TestParseMemoryKind(t *testing.T) {
	tests := []struct {
		raw     string
		want    MemoryKind
		wantErr bool
	}{
		{raw: "image", want: MemoryKindImage},
		{raw: " Document ", want: MemoryKindDocument},
		{raw: "NOTE", want: MemoryKindNote},
		{raw: "", wantErr: true},
		{raw: "gif", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseMemoryKind(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseMemoryKind(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseMemoryKind(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseMemoryKind(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParseAssetVariant(t *testing.T) {
	if _, err := ParseAssetVariant("thumbnail"); err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if _, err := ParseAssetVariant("banner"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
	if _, err := ParseAssetVariant(""); err == nil {
		t.Fatal("expected error for empty variant")
	}
}
