package client

// Operation names a remote RPC endpoint.
type Operation struct {
	Name string
	Path string
	// RequireRet rejects responses that carry no ret field at all.
	RequireRet bool
	// WithAppID appends aid=<app id> to the query string.
	WithAppID bool
}

var (
	OpUpload        = Operation{Name: "upload", Path: "/dreamina/mcp/v1/upload", RequireRet: true}
	OpImageGenerate = Operation{Name: "image-generate", Path: "/dreamina/mcp/v1/image_generate", RequireRet: true}
	OpVideoGenerate = Operation{Name: "video-generate", Path: "/dreamina/mcp/v1/video_generate", RequireRet: true}
	// The history endpoint does not always include ret.
	OpQuery = Operation{Name: "query", Path: "/mweb/v1/get_history_by_ids", WithAppID: true}
)

// Operations lists every known operation.
func Operations() []Operation {
	return []Operation{OpUpload, OpImageGenerate, OpVideoGenerate, OpQuery}
}
