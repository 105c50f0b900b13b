// Package extract reads artifact locations out of a successful job record.
// Missing levels yield empty results; nothing here returns an error.
package extract

import (
	"strings"

	"github.com/psantana5/dreamina/pkg/models"
)

// Images returns every rendered image in item order. Entries without a URL
// are skipped.
func Images(r *models.RawResult) []models.ImageDescriptor {
	if r == nil {
		return nil
	}
	var out []models.ImageDescriptor
	for _, item := range r.ItemList {
		if item.Image == nil {
			continue
		}
		for _, img := range item.Image.LargeImages {
			url := strings.TrimSpace(img.ImageURL)
			if url == "" {
				continue
			}
			out = append(out, models.ImageDescriptor{URL: url, ContentURI: strings.TrimSpace(img.ImageURI)})
		}
	}
	return out
}

// ContentURIs returns the non-empty content URIs of Images(r).
func ContentURIs(r *models.RawResult) []string {
	var uris []string
	for _, img := range Images(r) {
		if img.ContentURI != "" {
			uris = append(uris, img.ContentURI)
		}
	}
	return uris
}

// Video returns the playable URL of the first item. The transcoded origin
// wins over the raw resource, which wins over the origin video.
func Video(r *models.RawResult) (models.VideoResult, bool) {
	if r == nil || len(r.ItemList) == 0 || r.ItemList[0].Video == nil {
		return models.VideoResult{}, false
	}
	v := r.ItemList[0].Video

	var candidates []*models.VideoLink
	if v.TranscodedVideo != nil {
		candidates = append(candidates, v.TranscodedVideo.Origin)
	}
	candidates = append(candidates, v.VideoResource, v.OriginVideo)

	for _, link := range candidates {
		if link == nil {
			continue
		}
		if url := strings.TrimSpace(link.VideoURL); url != "" {
			return models.VideoResult{URL: url}, true
		}
	}
	return models.VideoResult{}, false
}

// URLs flattens whatever r carries into a list of artifact URLs, video first.
func URLs(r *models.RawResult) []string {
	var urls []string
	if v, ok := Video(r); ok {
		urls = append(urls, v.URL)
	}
	for _, img := range Images(r) {
		urls = append(urls, img.URL)
	}
	return urls
}
