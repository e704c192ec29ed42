package entity

// CandidateFile is a selected link on its way to disk.
type CandidateFile struct {
	SourceURL         string
	ContentHash       string // 8 hex chars, derived from SourceURL only
	GeneratedFilename string
	TrackIndex        int
}

// Tags are the ID3 values applied to a downloaded file. Empty values are left untouched.
type Tags struct {
	Album       string
	Track       int
	ReleaseDate string
}
