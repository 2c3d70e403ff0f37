package transform

import (
	"fmt"
	"strings"
)

// Connector path segments used in record routes.
const (
	routeSegmentGmail = "gmail"
	routeSegmentDrive = "drive"
)

// RecordRoutes builds the per-record API routes announced in record events.
// SignedURL routes are absolute (downstream consumers call them directly),
// metadata routes are service-relative.
type RecordRoutes struct {
	BaseURL string
}

// MailSignedURL returns the absolute signed-url route for a mail record.
func (r RecordRoutes) MailSignedURL(recordKey string) string {
	return fmt.Sprintf("%s/api/v1/%s/record/%s/signedUrl", strings.TrimRight(r.BaseURL, "/"), routeSegmentGmail, recordKey)
}

// MailMetadata returns the relative metadata route for a mail record.
func (r RecordRoutes) MailMetadata(recordKey string) string {
	return fmt.Sprintf("/api/v1/%s/record/%s/metadata", routeSegmentGmail, recordKey)
}

// DriveSignedURL returns the absolute signed-url route for a drive record.
func (r RecordRoutes) DriveSignedURL(recordKey string) string {
	return fmt.Sprintf("%s/api/v1/%s/record/%s/signedUrl", strings.TrimRight(r.BaseURL, "/"), routeSegmentDrive, recordKey)
}

// DriveMetadata returns the relative metadata route for a drive record.
func (r RecordRoutes) DriveMetadata(recordKey string) string {
	return fmt.Sprintf("/api/v1/%s/record/%s/metadata", routeSegmentDrive, recordKey)
}
