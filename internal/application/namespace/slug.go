package namespace

import (
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
)

var (
	slugStripRe    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugCollapseRe = regexp.MustCompile(`[\s-]+`)
)

// Slugify 将任意名称转为子域名候选
// "Pixfar Ltd." -> "pixfar-ltd"
func Slugify(text string) string {
	s := strings.ToLower(unidecode.Unidecode(text))
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugCollapseRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
