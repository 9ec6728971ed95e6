package drive

import (
	"context"
	"errors"
	"testing"
)

func TestFolderPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wedding", "wedding/"},
		{"/wedding/", "wedding/"},
		{"a/b", "a/b/"},
		{"", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := folderPrefix(tt.in); got != tt.want {
			t.Errorf("folderPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsImageKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"wedding/IMG_1234.jpg", true},
		{"wedding/IMG_1234.JPEG", true},
		{"wedding/shot.png", true},
		{"wedding/clip.mp4", false},
		{"wedding/notes.txt", false},
		{"wedding/noext", false},
	}
	for _, tt := range tests {
		if got := isImageKey(tt.key); got != tt.want {
			t.Errorf("isImageKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestListChangesRejectsMalformedCursor(t *testing.T) {
	d := &MinIODrive{}
	_, _, err := d.ListChanges(context.Background(), "wedding", "not-a-timestamp")
	if !errors.Is(err, ErrStaleCursor) {
		t.Fatalf("err = %v, want ErrStaleCursor", err)
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	var err error = &TransportError{Op: "get wedding/a.jpg", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("TransportError should unwrap to the inner error")
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "get wedding/a.jpg" {
		t.Fatalf("errors.As failed: %+v", te)
	}
}
