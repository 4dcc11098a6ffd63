package models

// BasicInfo is the source-level metadata returned by the remote catalog
type BasicInfo struct {
	ExternalID string
	Title      string
	Thumbnail  string
	TotalCount int
}

// VideoPage is one page of a remote source's videos
type VideoPage struct {
	Videos     []VideoRecord
	TotalCount int
}
