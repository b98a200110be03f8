// Package protocol defines the wire types shared by the server and
// its clients.
package protocol

import "encoding/json"

// Entry kinds on the wire. "none" covers entries the server lists but
// will not serve (symlinks, sockets, devices).
const (
	KindFile      = "file"
	KindDirectory = "directory"
	KindNone      = "none"
)

// Descriptor is the metadata snapshot of one storage entry. Size is
// present for files, Children for directories. Timestamps are Unix
// epoch seconds; negative values are legal and 0 means unknown.
type Descriptor struct {
	Filename     string `json:"filename"`
	Kind         string `json:"kind"`
	Size         *int64 `json:"size,omitempty"`
	Children     *int   `json:"children,omitempty"`
	Created      int64  `json:"created"`
	LastAccess   int64  `json:"last_access"`
	LastModified int64  `json:"last_modified"`
}

// IsDir reports whether the descriptor names a directory.
func (d Descriptor) IsDir() bool { return d.Kind == KindDirectory }

// Upload metadata kinds, matching the "kind" field of the metadata
// multipart part on POST.
const (
	UploadKindFile   = "File"
	UploadKindFolder = "Folder"
)

// UploadMetadata is the JSON carried in the "metadata" part of a POST.
// For files a "payload" part with the content follows; for folders the
// metadata part stands alone. Timestamps are optional and applied to
// the published file when present.
type UploadMetadata struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Created      int64  `json:"created,omitempty"`
	LastAccess   int64  `json:"last_access,omitempty"`
	LastModified int64  `json:"last_modified,omitempty"`
}

// Event is a storage change notification delivered over SSE.
type Event struct {
	Type      string `json:"type"`
	Tenant    string `json:"tenant"`
	Path      string `json:"path"`
	Size      int64  `json:"size,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse is returned on API errors. The message is intentionally
// generic for server-side failures; details stay in the server log.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// MarshalEvent serializes an event for an SSE data line.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
