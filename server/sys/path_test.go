package sys

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestWithinRoot(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		path string
		want string
		err  error
	}{
		{"relative", "shows/matador", filepath.Join(root, "shows", "matador"), nil},
		{"root itself", root, root, nil},
		{"absolute inside", filepath.Join(root, "tv"), filepath.Join(root, "tv"), nil},
		{"dot segments inside", "a/../b", filepath.Join(root, "b"), nil},
		{"parent", "..", "", ErrOutsideRoot},
		{"escaping relative", "../../etc", "", ErrOutsideRoot},
		{"absolute outside", "/etc", "", ErrOutsideRoot},
		{"sibling prefix", root + "-other", "", ErrOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithinRoot(root, tt.path)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
