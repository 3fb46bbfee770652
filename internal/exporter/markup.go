package exporter

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// MarkupField is the long-text column whose markup is stripped before indexing.
const MarkupField = "Answer"

var (
	scriptTag    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	allTags      = regexp.MustCompile(`<[^>]+>`)
	multiSpaces  = regexp.MustCompile(`[ \t]+`)
)

// StripMarkup removes tags, comments, scripts and styles and decodes entities.
func StripMarkup(v any) string {
	var content string
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		content = s
	case []byte:
		content = string(s)
	default:
		content = fmt.Sprint(s)
	}

	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	return strings.TrimSpace(content)
}
