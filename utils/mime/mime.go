package mime

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SniffContentType detects the content type from the first 512 bytes of the
// stream and seeks back to the start. Caller-supplied Content-Type headers
// are never trusted for validation.
func SniffContentType(stream io.ReadSeeker) (string, error) {
	buffer := make([]byte, 512)

	n, err := stream.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read stream for mime sniffing: %w", err)
	}

	contentType := http.DetectContentType(buffer[:n])

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek stream back to start after sniffing: %w", err)
	}

	// DetectContentType may append charset parameters
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return contentType, nil
}
