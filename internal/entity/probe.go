package entity

import "time"

// ErrorKind is the network failure class recorded for a probe or a download.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindDNS             ErrorKind = "dns"
	ErrorKindTLS             ErrorKind = "tls"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindHTTP            ErrorKind = "http_error"
	ErrorKindConnectionReset ErrorKind = "connection_reset"
	ErrorKindOther           ErrorKind = "other"
)

// ProbeResult holds the metadata observed by a header-only request.
type ProbeResult struct {
	URL          string
	FinalURL     string // URL after redirects, empty if the request never completed
	SizeBytes    *int64
	LastModified *time.Time
	ETag         string
	OK           bool
	ErrorKind    ErrorKind
}

// ContentSignature stands in for "is this the same audio file".
type ContentSignature struct {
	PrimaryKey  string // Set only when the size is known
	FallbackKey string
}

// SignedLink pairs a link with the signature derived from its probe.
type SignedLink struct {
	Link      LinkRecord
	Signature ContentSignature
}
