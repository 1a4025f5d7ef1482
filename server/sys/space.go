package sys

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var ErrNoSpace = errors.New("not enough free space")

// EnsureFreeSpace fails when path has less than min bytes available.
// Filesystems that cannot report free space pass the check.
func EnsureFreeSpace(path string, min uint64) error {
	if min == 0 {
		return nil
	}

	free, err := FreeSpace(path)
	if errors.Is(err, errors.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}

	if free < min {
		return fmt.Errorf("%w on %s: %s available, %s required",
			ErrNoSpace, path, humanize.Bytes(free), humanize.Bytes(min))
	}
	return nil
}
