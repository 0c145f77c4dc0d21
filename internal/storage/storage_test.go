package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDiskUploadOpenDelete(t *testing.T) {
	ctx := context.Background()
	d := NewDisk(t.TempDir())

	name, err := d.Upload(ctx, "threads/t1/images", File{Name: "Cat.PNG", Reader: strings.NewReader("png-bytes")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasSuffix(name, ".png") {
		t.Errorf("stored name = %q, want .png suffix", name)
	}

	rc, err := d.Open(ctx, "threads/t1/images", name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "png-bytes" {
		t.Errorf("content = %q, want %q", data, "png-bytes")
	}

	if err := d.Delete(ctx, "threads/t1/images", name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := d.Delete(ctx, "threads/t1/images", name); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

func TestDiskRejectsEscapes(t *testing.T) {
	d := NewDisk(t.TempDir())
	_, err := d.Open(context.Background(), "../../etc", "passwd")
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Open outside root err = %v, want ErrInvalidPath", err)
	}
}

func TestFileExt(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a.JPG", "jpg"},
		{"archive.tar.gz", "gz"},
		{"noext", ""},
	}
	for _, tt := range tests {
		if got := (File{Name: tt.name}).Ext(); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
