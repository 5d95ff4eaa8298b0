package security

import (
	"strings"
	"testing"
)

func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"段落", "<p>Open world RPG</p>", []string{"<p>Open world RPG</p>"}},
		{"リスト", "<ul><li>Co-op</li><li>PvP</li></ul>", []string{"<ul>", "<li>Co-op</li>", "</ul>"}},
		{"見出し", "<h3>Features</h3>", []string{"<h3>Features</h3>"}},
		{"強調", "<strong>Award</strong> <em>winning</em>", []string{"<strong>Award</strong>", "<em>winning</em>"}},
		{"改行", "line1<br>line2", []string{"<br", "line1", "line2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

func TestSanitize_RemovesDangerousContent(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{"scriptタグ", `<p>ok</p><script>alert(1)</script>`, []string{"<script", "alert(1)"}},
		{"iframeタグ", `<iframe src="https://evil.example"></iframe>`, []string{"<iframe"}},
		{"styleタグ", `<style>body{display:none}</style>`, []string{"<style"}},
		{"onclick属性", `<p onclick="steal()">x</p>`, []string{"onclick", "steal"}},
		{"javascriptスキーム", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"imgタグ", `<img src="https://cdn.example/a.png">`, []string{"<img"}},
		{"httpリンク", `<a href="http://plain.example">x</a>`, []string{"http://plain.example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, must not contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

func TestSanitize_HTTPSLinkGetsTargetAndRel(t *testing.T) {
	got := NewDescriptionSanitizer().Sanitize(`<a href="https://studio.example.com">Studio</a>`)

	for _, want := range []string{`href="https://studio.example.com"`, `target="_blank"`, "noopener", "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("got %q, expected to contain %q", got, want)
		}
	}
}

func TestSanitize_EmptyAndPlainText(t *testing.T) {
	s := NewDescriptionSanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
	if got := s.Sanitize("Just text"); got != "Just text" {
		t.Errorf("Sanitize(plain) = %q, want %q", got, "Just text")
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewDescriptionSanitizer()
	input := `<p>A <strong>bold</strong> <a href="https://x.example">link</a></p><script>x</script>`

	first := s.Sanitize(input)
	if second := s.Sanitize(first); first != second {
		t.Errorf("not idempotent:\n first=%q\nsecond=%q", first, second)
	}
}
