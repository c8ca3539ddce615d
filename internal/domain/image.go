package domain

// GeneratedImage describes one successfully relayed image. It is created once
// per relay call and never updated.
type GeneratedImage struct {
	RemoteURL string
	LocalPath string
	Filename  string
	URL       string
	Width     int
	Height    int
	Bytes     int64
}
