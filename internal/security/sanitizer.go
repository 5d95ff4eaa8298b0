// Package security は画面表示と外部リソース取得の安全対策を提供する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer はカタログが返すゲーム説明文のHTMLをサニタイズする。
// 説明文・動作環境はカタログ管理者が入力した任意のHTMLを含み得るため、
// 表示前に必ず通す。
type DescriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, b, i, h3, h4
//   - aタグ: httpsの絶対URLのみ、target="_blank" と rel="noopener noreferrer" を付与
//   - img, script, iframe, style および on* 属性は除去（画像は/media経由でのみ表示する）
func NewDescriptionSanitizer() *DescriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "b", "i",
		"h3", "h4",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &DescriptionSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして返す。同一入力に対して常に同一出力を返す。
func (s *DescriptionSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
