// Package sessioncodec reads and strips the session marker a web front-end
// embeds in the first message of a conversation.
//
// The marker has the form [[SESSION:<session id>|CSRF:<csrf token>]].
// Keywords are case-insensitive; values may not contain '|', ']' or
// whitespace.
package sessioncodec

import (
	"regexp"
	"strings"

	"petstore-assistant/internal/domain"
)

var markerPattern = regexp.MustCompile(`(?i)\[\[\s*session:([^|\]\s]+)\s*\|\s*csrf:([^|\]\s]+)\s*\]\]`)

// Decode returns the session carried by text and the text with the marker
// removed. ok is false when no complete marker is present.
func Decode(text string) (info domain.SessionInfo, ok bool) {
	loc := markerPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return domain.SessionInfo{}, false
	}
	remaining := strings.TrimSpace(text[:loc[0]]) + " " + strings.TrimSpace(text[loc[1]:])
	return domain.SessionInfo{
		SessionID: text[loc[2]:loc[3]],
		CSRFToken: text[loc[4]:loc[5]],
		Text:      strings.TrimSpace(remaining),
	}, true
}

// Encode renders the marker a front-end prepends to the first message of a
// conversation. It returns "" if either value is empty or would not survive
// Decode.
func Encode(sessionID, csrfToken string) string {
	if !validValue(sessionID) || !validValue(csrfToken) {
		return ""
	}
	return "[[SESSION:" + sessionID + "|CSRF:" + csrfToken + "]]"
}

func validValue(v string) bool {
	return v != "" && !strings.ContainsAny(v, "|] \t\r\n")
}
