package resource

import (
	"encoding/json"
	"strings"
)

// Resource describes a published media title and the assets it offers.
// An empty Data slice is a valid, decodable value.
type Resource struct {
	Title string     `json:"title"`
	Data  []DataItem `json:"data"`
}

type DataItem struct {
	Title  string  `json:"title"`
	Assets []Asset `json:"assets"`
}

type AssetKind int

const (
	AssetOther AssetKind = iota
	AssetVideo
)

func (k AssetKind) String() string {
	if k == AssetVideo {
		return "Video"
	}
	return "Other"
}

// Asset is a tagged union over {Video, Other}. Links is only meaningful
// when Kind is AssetVideo.
type Asset struct {
	Kind  AssetKind
	Links []Link
}

func (a Asset) IsVideo() bool { return a.Kind == AssetVideo }

func (a *Asset) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type  string `json:"type"`
		Kind  string `json:"kind"`
		Links []Link `json:"links"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	tag := raw.Type
	if tag == "" {
		tag = raw.Kind
	}

	*a = Asset{Kind: AssetOther}
	if strings.EqualFold(tag, "Video") || strings.EqualFold(tag, "VideoResource") {
		a.Kind = AssetVideo
		a.Links = raw.Links
	}
	return nil
}

func (a Asset) MarshalJSON() ([]byte, error) {
	out := struct {
		Type  string `json:"type"`
		Links []Link `json:"links,omitempty"`
	}{Type: a.Kind.String()}
	if a.IsVideo() {
		out.Links = a.Links
	}
	return json.Marshal(out)
}

type TargetKind int

const (
	TargetOther TargetKind = iota
	TargetStreaming
	TargetDownload
)

func (t TargetKind) String() string {
	switch t {
	case TargetStreaming:
		return "Streaming"
	case TargetDownload:
		return "Download"
	default:
		return "Other"
	}
}

func (t *TargetKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch {
	case strings.EqualFold(s, "Streaming"):
		*t = TargetStreaming
	case strings.EqualFold(s, "Download"):
		*t = TargetDownload
	default:
		*t = TargetOther
	}
	return nil
}

func (t TargetKind) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// Link is one delivery endpoint of a video asset. URI is opaque here.
type Link struct {
	Target  TargetKind `json:"target"`
	Bitrate int        `json:"bitrate"`
	URI     string     `json:"uri"`
}

// DisplayTitle is the name a download of r should be saved under.
func (r *Resource) DisplayTitle() string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	if len(r.Data) > 0 {
		if t := strings.TrimSpace(r.Data[0].Title); t != "" {
			return t
		}
	}
	return "untitled"
}
