package sharhbot

import (
	"net/url"
	"regexp"
	"strings"
)

// AttachmentType classifies a URL found in submitted explanation content,
// based on its file extension.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentDocument AttachmentType = "document"
	AttachmentLink     AttachmentType = "link"
)

// Attachment is a single URL extracted from explanation content, paired
// with its classification.
type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

var attachmentExtensions = map[AttachmentType][]string{
	AttachmentImage:    {".jpg", ".jpeg", ".png", ".gif", ".webp"},
	AttachmentVideo:    {".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm"},
	AttachmentAudio:    {".mp3", ".wav", ".ogg", ".flac"},
	AttachmentDocument: {".pdf", ".doc", ".docx", ".txt"},
}

// classifyURL returns the AttachmentType for the given URL, based on a
// case-insensitive suffix match. URLs without a recognized extension
// classify as AttachmentLink.
func classifyURL(u string) AttachmentType {
	lower := strings.ToLower(u)
	for _, attachmentType := range []AttachmentType{
		AttachmentImage,
		AttachmentVideo,
		AttachmentAudio,
		AttachmentDocument,
	} {
		for _, ext := range attachmentExtensions[attachmentType] {
			if strings.HasSuffix(lower, ext) {
				return attachmentType
			}
		}
	}
	return AttachmentLink
}

// extractAttachments scans free-form text for URLs and returns one
// Attachment per well-formed absolute URL found, preserving
// first-occurrence order. Duplicates are kept. Malformed matches are
// silently dropped - this function never fails, and input without any
// valid URL yields an empty slice.
func extractAttachments(content string) []Attachment {
	matches := urlPattern.FindAllString(content, -1)
	attachments := make([]Attachment, 0, len(matches))
	for _, match := range matches {
		parsed, err := url.Parse(match)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			continue
		}
		attachments = append(
			attachments,
			Attachment{Type: classifyURL(match), URL: match},
		)
	}
	return attachments
}

// stripAttachmentURLs removes every attachment URL from the given
// content and trims the result. If nothing remains, the placeholder
// is returned instead, so the posted explanation always has a body.
func stripAttachmentURLs(
	content string,
	attachments []Attachment,
	placeholder string,
) string {
	for _, attachment := range attachments {
		content = strings.ReplaceAll(content, attachment.URL, "")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return placeholder
	}
	return content
}

// attachmentLabel returns the display label used for an attachment line
// on review cards and explanation channel messages.
func attachmentLabel(t AttachmentType) string {
	switch t {
	case AttachmentImage:
		return "🖼️ Image"
	case AttachmentVideo:
		return "🎬 Video"
	case AttachmentAudio:
		return "🎵 Audio"
	case AttachmentDocument:
		return "📄 Document"
	default:
		return "🔗 Link"
	}
}

// attachmentSummary renders one type-labeled line per attachment, or
// a fallback string when there are none.
func attachmentSummary(attachments []Attachment) string {
	if len(attachments) == 0 {
		return "No attachments"
	}
	lines := make([]string, len(attachments))
	for i, attachment := range attachments {
		lines[i] = attachmentLabel(attachment.Type) + ": " + attachment.URL
	}
	return strings.Join(lines, "\n")
}
