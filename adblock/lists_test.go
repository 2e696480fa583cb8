package adblock

import (
	"reflect"
	"testing"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "hosts format",
			input: "127.0.0.1 localhost\n0.0.0.0 ads.example.com tracker.example.com\n::1 ip6-localhost\n",
			want:  []string{"ads.example.com", "tracker.example.com"},
		},
		{
			name:  "plain domains with comments",
			input: "# comment\nAds.Example.com\n\nmetrics.example.net # inline\n",
			want:  []string{"ads.example.com", "metrics.example.net"},
		},
		{
			name:  "anchored filter rules",
			input: "[Adblock Plus 2.0]\n! comment\n||ads.example.com^\n||pixel.example.org^$third-party\n||cdn.example.net/ads/\n@@||good.example.com^\nexample.com##.banner\n",
			want:  []string{"ads.example.com", "pixel.example.org"},
		},
		{
			name:  "rejects ips and garbage",
			input: "0.0.0.0 0.0.0.0\n192.168.1.1\nnot a domain at all\n/ads/*\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseList([]byte(tt.input))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseList = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHardBlockList_Blocks(t *testing.T) {
	l := HardBlockList{"doubleclick.net", "taboola.com", ""}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://securepubads.g.doubleclick.net/tag/js/gpt.js", true},
		{"https://cdn.taboola.com/libtrc/loader.js", true},
		{"https://example.com/?ref=doubleclick.net", true},
		{"https://example.com/app.js", false},
		{"https://DOUBLECLICK.NET/x", false},
	}

	for _, tt := range tests {
		if got := l.Blocks(tt.url); got != tt.want {
			t.Errorf("Blocks(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	if (HardBlockList{}).Blocks("https://doubleclick.net/") {
		t.Error("empty list must not block")
	}
}
