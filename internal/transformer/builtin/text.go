package builtin

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips HTML markup and entities from a free-text label and
// collapses whitespace. Labels on this source sometimes carry <br> or &nbsp;.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	doc.Find("script,style").Remove()
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	// strings.Fields splits on U+00A0 too, which &nbsp; decodes to.
	return strings.Join(strings.Fields(s), " ")
}
