package email

import (
	"encoding/base64"
	"log/slog"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// Bodies holds the decoded text and HTML bodies of a message
type Bodies struct {
	PlainText string
	HTML      string
}

// ExtractBodies walks the MIME tree in document order and returns the first
// decodable HTML and plain text body. Undecodable parts are logged and
// skipped so a corrupt branch never hides a valid sibling.
func ExtractBodies(payload *gmail.MessagePart, logger *slog.Logger) Bodies {
	if logger == nil {
		logger = slog.Default()
	}
	var bodies Bodies
	collectBodies(payload, &bodies, logger)
	return bodies
}

func collectBodies(part *gmail.MessagePart, bodies *Bodies, logger *slog.Logger) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" && part.MimeType != "" {
		mimeType := strings.ToLower(part.MimeType)
		switch {
		case strings.Contains(mimeType, "html"):
			if bodies.HTML == "" {
				bodies.HTML = decodePart(part, logger)
			}
		case strings.HasPrefix(mimeType, "text/plain"):
			if bodies.PlainText == "" {
				bodies.PlainText = decodePart(part, logger)
			}
		}
	}

	for _, child := range part.Parts {
		collectBodies(child, bodies, logger)
	}
}

func decodePart(part *gmail.MessagePart, logger *slog.Logger) string {
	decoded, err := decodeBase64URL(part.Body.Data)
	if err != nil {
		logger.Warn("Skipping undecodable message part",
			"part_id", part.PartId,
			"mime_type", part.MimeType,
			"error", err)
		return ""
	}
	return decoded
}

// decodeBase64URL decodes URL-safe base64, restoring any stripped padding
func decodeBase64URL(data string) (string, error) {
	data = strings.TrimRight(strings.TrimSpace(data), "=")
	if rem := len(data) % 4; rem != 0 {
		data += strings.Repeat("=", 4-rem)
	}
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
