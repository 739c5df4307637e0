package file

// StaticFile is a user-uploaded blob. The row holds the metadata; the bytes
// live in a Store under the file's namespace and key.
type StaticFile struct {
	ID         int    `json:"id"`
	Mimetype   string `json:"mimetype"`
	Namespace  string `json:"namespace"`
	Key        string `json:"-"`
	OwnerEmail string `json:"-"`
}

// AllowedMimetypes lists the upload types the platform accepts.
var AllowedMimetypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}
