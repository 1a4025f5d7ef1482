package resource

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("resource not found")

// NotFoundError reports which part of a resource description was missing.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("resource not found: %s", e.Reason) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(reason string) error { return &NotFoundError{Reason: reason} }

// SelectBestLink picks the highest bitrate Streaming link of the first
// asset of the first data item. Equal bitrates resolve to the earliest link.
func SelectBestLink(r *Resource) (Link, error) {
	if r == nil || len(r.Data) == 0 {
		return Link{}, notFound("no data items")
	}

	item := r.Data[0]
	if len(item.Assets) == 0 {
		return Link{}, notFound("no assets")
	}

	asset := item.Assets[0]
	if !asset.IsVideo() {
		return Link{}, notFound("video resource not found")
	}

	var (
		best  Link
		found bool
	)
	for _, l := range asset.Links {
		if l.Target != TargetStreaming {
			continue
		}
		if !found || l.Bitrate > best.Bitrate {
			best = l
			found = true
		}
	}

	if !found {
		return Link{}, notFound("no streaming links")
	}

	return best, nil
}
