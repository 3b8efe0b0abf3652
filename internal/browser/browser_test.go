package browser

import "testing"

func TestContainsFold(t *testing.T) {
	if !containsFold("Application/JSON; charset=utf-8", "json") {
		t.Error("expected match")
	}
	if containsFold("text/html", "json") {
		t.Error("expected no match")
	}
}

func TestHasSuffixFold(t *testing.T) {
	if !hasSuffixFold("https://x.com/a/b.JSON", ".json") {
		t.Error("expected match")
	}
	if hasSuffixFold("https://x.com/a/b.html", ".json") {
		t.Error("expected no match")
	}
}

func TestHostBlocked(t *testing.T) {
	if !hostBlocked("https://www.google-analytics.com/collect") {
		t.Error("expected blocked")
	}
	if hostBlocked("https://smartchip.co.kr/data.asp") {
		t.Error("expected not blocked")
	}
}
