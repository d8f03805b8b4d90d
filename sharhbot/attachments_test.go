package sharhbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyURL(t *testing.T) {
	for _, tc := range []struct {
		url      string
		expected AttachmentType
	}{
		{"http://example.com/photo.png", AttachmentImage},
		{"http://example.com/photo.jpeg", AttachmentImage},
		{"http://example.com/clip.mp4", AttachmentVideo},
		{"http://example.com/clip.webm", AttachmentVideo},
		{"http://example.com/song.mp3", AttachmentAudio},
		{"http://example.com/notes.pdf", AttachmentDocument},
		{"http://example.com/notes.txt", AttachmentDocument},
		{"http://example.com/page", AttachmentLink},
		{"http://example.com/archive.zip", AttachmentLink},
	} {
		t.Run(tc.url, func(t *testing.T) {
			assert.Equal(t, tc.expected, classifyURL(tc.url))
		})
	}
}

func TestClassifyURLCaseInsensitive(t *testing.T) {
	assert.Equal(
		t,
		AttachmentImage,
		classifyURL("http://example.com/FILE.PNG"),
	)
}

func TestExtractAttachments(t *testing.T) {
	attachments := extractAttachments(
		"see http://x.com/a.png and not-a-url",
	)
	require.Len(t, attachments, 1)
	assert.Equal(t, AttachmentImage, attachments[0].Type)
	assert.Equal(t, "http://x.com/a.png", attachments[0].URL)
}

func TestExtractAttachmentsNone(t *testing.T) {
	assert.Empty(t, extractAttachments("nothing here"))
	assert.Empty(t, extractAttachments(""))
}

func TestExtractAttachmentsOrderAndDuplicates(t *testing.T) {
	content := "http://x.com/b.mp4 then http://x.com/a.png " +
		"then http://x.com/b.mp4 again"
	attachments := extractAttachments(content)
	require.Len(t, attachments, 3)
	assert.Equal(t, "http://x.com/b.mp4", attachments[0].URL)
	assert.Equal(t, "http://x.com/a.png", attachments[1].URL)
	assert.Equal(t, "http://x.com/b.mp4", attachments[2].URL)
}

func TestStripAttachmentURLs(t *testing.T) {
	content := "check this http://x.com/img.png out"
	attachments := extractAttachments(content)
	body := stripAttachmentURLs(content, attachments, "No additional text")
	assert.Equal(t, "check this  out", body)
}

func TestStripAttachmentURLsPlaceholder(t *testing.T) {
	content := "http://x.com/img.png"
	attachments := extractAttachments(content)
	body := stripAttachmentURLs(content, attachments, "No additional text")
	assert.Equal(t, "No additional text", body)
}

func TestAttachmentSummary(t *testing.T) {
	assert.Equal(t, "No attachments", attachmentSummary(nil))

	summary := attachmentSummary(
		[]Attachment{
			{Type: AttachmentImage, URL: "http://x.com/a.png"},
			{Type: AttachmentLink, URL: "http://x.com/page"},
		},
	)
	assert.Equal(
		t,
		"🖼️ Image: http://x.com/a.png\n🔗 Link: http://x.com/page",
		summary,
	)
}
