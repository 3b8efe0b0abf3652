package engine

import "testing"

func TestBuildURLFillsPlaceholders(t *testing.T) {
	got := buildURL("https://x.example/r?bib={nameorbibno}&uid={usedata}", "42", "seoul2026")
	want := "https://x.example/r?bib=42&uid=seoul2026"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildURLZeroPadsSpctBib(t *testing.T) {
	got := buildURL("https://img.spct.kr/{usedata}/{bib_spct6}.jpg", "42", "seoul2026")
	want := "https://img.spct.kr/seoul2026/000042.jpg"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHostOfLowercases(t *testing.T) {
	if got := hostOf("https://MyResult.co.kr/x"); got != "myresult.co.kr" {
		t.Errorf("got %q", got)
	}
}

func TestInferAssetsMyResult(t *testing.T) {
	out := inferAssets("myresult.co.kr", "seoul2026", "42")
	if len(out) != 1 || out[0].URL != "https://myresult.co.kr/upload/certificate/seoul2026/42" {
		t.Errorf("got %+v", out)
	}
}

func TestInferAssetsMissingFieldsYieldsNone(t *testing.T) {
	if out := inferAssets("myresult.co.kr", "", "42"); out != nil {
		t.Errorf("expected nil, got %+v", out)
	}
}
