package domain

const (
	DefaultUploadFilename    = "upload.png"
	DefaultUploadContentType = "application/octet-stream"
	SVGContentType           = "image/svg+xml"
)

// Upload is a raster image received from the client and held in memory for
// the duration of one request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Empty reports whether no file part was received.
func (u Upload) Empty() bool {
	return u.Data == nil
}

// WithDefaults fills in the static fallbacks for a missing filename or
// content type.
func (u Upload) WithDefaults() Upload {
	if u.Filename == "" {
		u.Filename = DefaultUploadFilename
	}
	if u.ContentType == "" {
		u.ContentType = DefaultUploadContentType
	}
	return u
}

// VectorResult is either raw SVG markup returned inline or a reference to a
// stored object plus its signed retrieval URL.
type VectorResult struct {
	SVG       []byte
	ObjectKey string
	URL       string
}

// Stored reports whether the result was persisted to object storage.
func (r VectorResult) Stored() bool {
	return r.URL != ""
}
