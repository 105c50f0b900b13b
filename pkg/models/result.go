package models

// RawResult is the vendor's history record for a job. Its shape depends on
// job kind and API surface; only the fields the extractor and poller read are
// declared. It is consumed by pkg/extract and should not be inspected elsewhere.
type RawResult struct {
	Status   RawStatus    `json:"status"`
	FailMsg  string       `json:"fail_msg,omitempty"`
	ItemList []ResultItem `json:"item_list,omitempty"`
}

// Empty reports whether the record carries nothing at all, which the vendor
// uses interchangeably with a missing record.
func (r *RawResult) Empty() bool {
	return r == nil || (r.Status == "" && r.FailMsg == "" && len(r.ItemList) == 0)
}

// ResultItem is one generated artifact.
type ResultItem struct {
	Image *ImagePayload `json:"image,omitempty"`
	Video *VideoPayload `json:"video,omitempty"`
}

// ImagePayload lists the rendered sizes of one generated image.
type ImagePayload struct {
	LargeImages []RenderedImage `json:"large_images,omitempty"`
}

// RenderedImage is one rendered size.
type RenderedImage struct {
	ImageURL string `json:"image_url,omitempty"`
	ImageURI string `json:"image_uri,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// VideoPayload holds the three places different API surfaces put the same
// logical video.
type VideoPayload struct {
	TranscodedVideo *TranscodedVideo `json:"transcoded_video,omitempty"`
	VideoResource   *VideoLink       `json:"video_resource,omitempty"`
	OriginVideo     *VideoLink       `json:"origin_video,omitempty"`
}

// TranscodedVideo is populated by the public API.
type TranscodedVideo struct {
	Origin *VideoLink `json:"origin,omitempty"`
}

// VideoLink carries a playable URL.
type VideoLink struct {
	VideoURL string `json:"video_url,omitempty"`
}

// ImageDescriptor is an extracted image. ContentURI can be passed unchanged
// as a source URI of a later edit or video job.
type ImageDescriptor struct {
	URL        string `json:"url" yaml:"url"`
	ContentURI string `json:"content_uri" yaml:"content_uri"`
}

// VideoResult is the extracted video of a job.
type VideoResult struct {
	URL string `json:"url" yaml:"url"`
}
