package extract

import (
	"encoding/json"
	"testing"

	"github.com/psantana5/dreamina/pkg/models"
)

func decode(t *testing.T, body string) *models.RawResult {
	t.Helper()
	var r models.RawResult
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &r
}

func TestImages(t *testing.T) {
	r := decode(t, `{"status":50,"item_list":[
		{"image":{"large_images":[{"image_url":"https://cdn/a.png","image_uri":"tos/a"},{"image_uri":"tos/no-url"}]}},
		{"video":{}},
		{"image":{"large_images":[{"image_url":"https://cdn/b.png","image_uri":"tos/b"}]}}
	]}`)

	got := Images(r)
	if len(got) != 2 {
		t.Fatalf("expected 2 images, got %d: %+v", len(got), got)
	}
	if got[0].URL != "https://cdn/a.png" || got[0].ContentURI != "tos/a" {
		t.Errorf("unexpected first image %+v", got[0])
	}
	if got[1].ContentURI != "tos/b" {
		t.Errorf("unexpected second image %+v", got[1])
	}

	uris := ContentURIs(r)
	if len(uris) != 2 || uris[1] != "tos/b" {
		t.Errorf("ContentURIs = %v", uris)
	}
}

func TestImagesMissingLevels(t *testing.T) {
	for _, body := range []string{`{}`, `{"item_list":[]}`, `{"item_list":[{}]}`, `{"item_list":[{"image":{}}]}`} {
		if got := Images(decode(t, body)); len(got) != 0 {
			t.Errorf("%s: expected no images, got %v", body, got)
		}
	}
	if Images(nil) != nil {
		t.Error("nil record should yield nil")
	}
}

func TestVideoPriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{
			"transcoded wins",
			`{"item_list":[{"video":{"transcoded_video":{"origin":{"video_url":"T"}},"video_resource":{"video_url":"R"},"origin_video":{"video_url":"O"}}}]}`,
			"T", true,
		},
		{
			"resource second",
			`{"item_list":[{"video":{"transcoded_video":{"origin":{}},"video_resource":{"video_url":"R"},"origin_video":{"video_url":"O"}}}]}`,
			"R", true,
		},
		{
			"origin last",
			`{"item_list":[{"video":{"origin_video":{"video_url":"O"}}}]}`,
			"O", true,
		},
		{
			"first item only",
			`{"item_list":[{"image":{}},{"video":{"origin_video":{"video_url":"O"}}}]}`,
			"", false,
		},
		{"no items", `{"item_list":[]}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Video(decode(t, tt.body))
			if ok != tt.ok || got.URL != tt.want {
				t.Errorf("Video() = %q, %v; want %q, %v", got.URL, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestURLs(t *testing.T) {
	r := decode(t, `{"item_list":[{"video":{"video_resource":{"video_url":"V"}},"image":{"large_images":[{"image_url":"I"}]}}]}`)
	got := URLs(r)
	if len(got) != 2 || got[0] != "V" || got[1] != "I" {
		t.Errorf("URLs = %v", got)
	}
}
