package resolver

import (
	"testing"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

const origin = "http://localhost:3000"

func mustParse(t *testing.T, raw string) *whatwgUrl.Url {
	t.Helper()
	u, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"https://example.com", false},
		{"http://example.com/a/b?c=d", false},
		{"HTTPS://EXAMPLE.COM/", false},
		{"", true},
		{"example.com", true},
		{"ftp://example.com/file", true},
		{"javascript:alert(1)", true},
		{"https://", true},
		{"http://exa mple.com/%zz", true},
		{"//example.com/protocol-relative", true},
		{"https://example.com/%zz.png", false},
		{`https://example.com\a.png`, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ValidateTarget(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTarget(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	base := mustParse(t, "https://example.com/dir/index.html")

	tests := []struct {
		ref  string
		want string
	}{
		{"/logo.png", "https://example.com/logo.png"},
		{"img/a.png", "https://example.com/dir/img/a.png"},
		{"../up.css", "https://example.com/up.css"},
		{"//cdn.example.net/x.js", "https://cdn.example.net/x.js"},
		{"https://other.org/y", "https://other.org/y"},
		{"  /trimmed.png ", "https://example.com/trimmed.png"},
		{"?q=1", "https://example.com/dir/index.html?q=1"},
		{`\img\a.png`, "https://example.com/img/a.png"},
		{`\\cdn.example.net\x.js`, "https://cdn.example.net/x.js"},
		{"/img/a\nb.png", "https://example.com/img/ab.png"},
		{"/im\tg.png", "https://example.com/img.png"},
		{"/a\r\n/b.png", "https://example.com/a/b.png"},
		{"/%zz.png", "https://example.com/%zz.png"},
		{"/100%.png", "https://example.com/100%.png"},
	}
	for _, tt := range tests {
		got := Resolve(base, tt.ref)
		if got == nil {
			t.Errorf("Resolve(%q) = nil, want %q", tt.ref, tt.want)
			continue
		}
		if href := got.Href(false); href != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.ref, href, tt.want)
		}
	}
}

func TestResolve_Malformed(t *testing.T) {
	base := mustParse(t, "https://example.com/")
	for _, ref := range []string{"http://[::1", "https://exa mple.com/", "http://host:99999/"} {
		if got := Resolve(base, ref); got != nil {
			t.Errorf("Resolve(%q) = %q, want nil", ref, got.Href(false))
		}
	}
	if got := Resolve(nil, "/x"); got != nil {
		t.Errorf("expected nil for nil base, got %q", got.Href(false))
	}
}

func TestIsHTTP(t *testing.T) {
	base := mustParse(t, "https://example.com/")
	tests := []struct {
		ref  string
		want bool
	}{
		{"/a.png", true},
		{"http://other.example/", true},
		{"javascript:void(0)", false},
		{"data:image/gif;base64,R0lGOD", false},
		{"mailto:someone@example.com", false},
	}
	for _, tt := range tests {
		u := Resolve(base, tt.ref)
		if u == nil {
			t.Fatalf("Resolve(%q) = nil", tt.ref)
		}
		if got := IsHTTP(u); got != tt.want {
			t.Errorf("IsHTTP(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{"https://example.com/page.html", HTMLLike},
		{"https://example.com/page.HTM", HTMLLike},
		{"https://example.com/index.php?id=3", HTMLLike},
		{"https://example.com/default.aspx", HTMLLike},
		{"https://example.com/app.asp", HTMLLike},
		{"https://example.com/view.jsp", HTMLLike},
		{"https://example.com/login.do", HTMLLike},
		{"https://example.com/", HTMLLike},
		{"https://example.com", HTMLLike},
		{"https://example.com/articles/some-story", HTMLLike},
		{"https://example.com/v1.2/articles", HTMLLike},
		{"https://example.com/logo.png", AssetLike},
		{"https://example.com/static/app.js?v=9", AssetLike},
		{"https://example.com/style.css", AssetLike},
		{"https://example.com/doc.pdf", AssetLike},
		{`https://example.com\static\app.js`, AssetLike},
		{"https://example.com/%zz.png", AssetLike},
	}
	for _, tt := range tests {
		if got := ClassifyString(tt.raw); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestProxyURL_RoundTrip(t *testing.T) {
	targets := []string{
		"https://example.com/logo.png",
		"https://example.com/search?q=a+b&lang=en",
		"http://example.com/path with spaces/é.png",
		"https://example.com/a%2Fb",
		"https://example.com/#frag",
		"https://example.com/?url=https://nested.example/",
	}
	for _, target := range targets {
		proxied := ProxyURL(origin, target)
		got, ok := TargetOf(proxied)
		if !ok {
			t.Errorf("TargetOf(%q) found no url param", proxied)
			continue
		}
		if got != target {
			t.Errorf("round trip mismatch: got %q, want %q", got, target)
		}
	}
}

func TestProxyURL_Injective(t *testing.T) {
	targets := []string{
		"https://example.com/a b",
		"https://example.com/a+b",
		"https://example.com/a%20b",
		"https://example.com/a%2Bb",
		"https://example.com/a",
		"https://example.com/A",
		"http://example.com/a",
	}
	seen := make(map[string]string, len(targets))
	for _, target := range targets {
		proxied := ProxyURL(origin, target)
		if prev, dup := seen[proxied]; dup {
			t.Errorf("ProxyURL collision: %q and %q both map to %q", prev, target, proxied)
		}
		seen[proxied] = target
	}
}

func TestProxyURL_Format(t *testing.T) {
	got := ProxyURL(origin, "https://example.com/logo.png")
	want := "http://localhost:3000/asset?url=https%3A%2F%2Fexample.com%2Flogo.png"
	if got != want {
		t.Errorf("ProxyURL = %q, want %q", got, want)
	}

	got = PageURL(origin, "https://example.com/")
	want = "http://localhost:3000/proxy?url=https%3A%2F%2Fexample.com%2F"
	if got != want {
		t.Errorf("PageURL = %q, want %q", got, want)
	}
}

func TestIsProxied(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{ProxyURL(origin, "https://example.com/x.png"), true},
		{PageURL(origin, "https://example.com/"), true},
		{"https://example.com/asset?url=x", false},
		{origin + "/other?url=x", false},
		{"http://localhost:3001/asset?url=x", false},
	}
	for _, tt := range tests {
		if got := IsProxied(origin, tt.raw); got != tt.want {
			t.Errorf("IsProxied(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
