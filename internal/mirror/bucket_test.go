package mirror_test

import (
	"testing"

	"fswatcher/internal/mirror"
)

func TestParseBucketSpec(t *testing.T) {
	tests := []struct {
		in         string
		wantName   string
		wantPrefix string
		wantErr    bool
	}{
		{in: "bucket", wantName: "bucket"},
		{in: "bucket/data", wantName: "bucket", wantPrefix: "data/"},
		{in: "bucket/data/raw/", wantName: "bucket", wantPrefix: "data/raw/"},
		{in: " bucket//data ", wantName: "bucket", wantPrefix: "data/"},
		{in: "", wantErr: true},
		{in: "/data", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := mirror.ParseBucketSpec(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBucketSpec(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBucketSpec(%q) error = %v", tt.in, err)
			}
			if got.Name != tt.wantName || got.Prefix != tt.wantPrefix {
				t.Errorf("ParseBucketSpec(%q) = %+v, want name %q prefix %q", tt.in, got, tt.wantName, tt.wantPrefix)
			}
		})
	}
}

func TestBucketSpec_RemoteKey(t *testing.T) {
	tests := []struct {
		name   string
		spec   string
		root   string
		path   string
		want   string
	}{
		{"prefix and nested path", "bucket/data", "/watch", "/watch/x/y.fits", "data/x/y.fits"},
		{"no prefix", "bucket", "/watch", "/watch/y.fits", "y.fits"},
		{"root with trailing slash", "bucket/data", "/watch/", "/watch/y.fits", "data/y.fits"},
		{"sibling directory is not stripped", "bucket", "/watch", "/watched/y.fits", "watched/y.fits"},
		{"multi-level prefix", "bucket/a/b", "/watch", "/watch/y.fits", "a/b/y.fits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := mirror.ParseBucketSpec(tt.spec)
			if err != nil {
				t.Fatalf("ParseBucketSpec() error = %v", err)
			}
			if got := spec.RemoteKey(tt.path, tt.root); got != tt.want {
				t.Errorf("RemoteKey(%q, %q) = %q, want %q", tt.path, tt.root, got, tt.want)
			}
		})
	}
}

func TestBucketSpec_LocalPathInvertsRemoteKey(t *testing.T) {
	spec, _ := mirror.ParseBucketSpec("bucket/data")
	for _, p := range []string{"/watch/a.fits", "/watch/x/y/z.fits"} {
		key := spec.RemoteKey(p, "/watch")
		if got := spec.LocalPath(key, "/watch"); got != p {
			t.Errorf("LocalPath(%q) = %q, want %q", key, got, p)
		}
	}
}

func TestBucketSpec_String(t *testing.T) {
	spec, _ := mirror.ParseBucketSpec("bucket/data/")
	if got := spec.String(); got != "bucket/data" {
		t.Errorf("String() = %q, want %q", got, "bucket/data")
	}
}
