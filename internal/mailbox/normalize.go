package mailbox

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

const (
	// PreviewLimit is the maximum preview length in characters, marker excluded.
	PreviewLimit = 150
	// Ellipsis is appended to a preview that was truncated.
	Ellipsis = "..."

	avatarBaseURL = "https://ui-avatars.com/api/"
)

var (
	senderPattern     = regexp.MustCompile(`^(.*?)\s*<(.+)>$`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize converts a full Gmail message into an Email. It is pure: the same
// record always yields the same value.
func Normalize(msg *gmail.Message) Email {
	email := Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Labels:   append([]string{}, msg.LabelIds...),
	}
	email.Timestamp = time.UnixMilli(msg.InternalDate)

	email.IsRead = !email.HasLabel(LabelUnread)
	email.IsStarred = email.HasLabel(LabelStarred)
	email.IsImportant = email.HasLabel(LabelImportant)

	if msg.Payload == nil {
		email.Sender = ParseSender("")
		return email
	}

	email.Sender = ParseSender(header(msg.Payload.Headers, "From"))
	email.Subject = header(msg.Payload.Headers, "Subject")
	email.Body = extractBody(msg.Payload)
	email.Preview = Preview(email.Body)
	email.HasAttachment = hasAttachment(msg.Payload.Parts)

	return email
}

// ParseSender splits a From header of the form `Display Name <address>`.
// Without an angle-bracket address both fields fall back to the raw value.
func ParseSender(from string) Sender {
	s := Sender{Name: from, Email: from}

	if m := senderPattern.FindStringSubmatch(from); m != nil {
		s.Email = m[2]
		s.Name = strings.ReplaceAll(strings.TrimSpace(m[1]), `"`, "")
		if s.Name == "" {
			s.Name = s.Email
		}
	}

	s.AvatarURL = avatarURL(s.Name)

	return s
}

// Preview strips tags, collapses whitespace and truncates body to PreviewLimit
// characters, appending Ellipsis only when something was cut off.
func Preview(body string) string {
	text := tagPattern.ReplaceAllString(body, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= PreviewLimit {
		return text
	}

	return string(runes[:PreviewLimit]) + Ellipsis
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func extractBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBase64(payload.Body.Data)
	}

	for _, part := range payload.Parts {
		if part.MimeType != "text/plain" && part.MimeType != "text/html" {
			continue
		}
		if part.Body == nil || part.Body.Data == "" {
			return ""
		}
		return decodeBase64(part.Body.Data)
	}

	return ""
}

func hasAttachment(parts []*gmail.MessagePart) bool {
	for _, part := range parts {
		if part.Filename != "" {
			return true
		}
		if hasAttachment(part.Parts) {
			return true
		}
	}
	return false
}

// decodeBase64 accepts the url-safe alphabet Gmail uses as well as the
// standard one, padded or not.
func decodeBase64(data string) string {
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return string(decoded)
		}
	}
	return data
}

func avatarURL(name string) string {
	v := url.Values{}
	v.Set("name", name)
	v.Set("background", "random")
	return avatarBaseURL + "?" + v.Encode()
}
