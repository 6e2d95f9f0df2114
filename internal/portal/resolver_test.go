package portal

import (
	"strings"
	"testing"
)

const exampleSkylink = "AACogzrAimYPG42tDOKhS3lXZD8YvlF8Q8R17afe95iV2Q"

func TestResolver_SkylinkURL(t *testing.T) {
	r := NewResolver("siasky.net")
	got, err := r.SkylinkURL("sia://" + exampleSkylink)
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://siasky.net/"+exampleSkylink {
		t.Fatalf("got %q", got)
	}
}

func TestResolver_SkylinkSubdomainURL(t *testing.T) {
	r := NewResolver("siasky.net")
	got, err := r.SkylinkSubdomainURL(exampleSkylink)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "https://") || !strings.HasSuffix(got, ".siasky.net") {
		t.Fatalf("got %q", got)
	}
	label := strings.TrimSuffix(strings.TrimPrefix(got, "https://"), ".siasky.net")
	if len(label) != 55 {
		t.Fatalf("label length = %d, want 55", len(label))
	}
	if label != strings.ToLower(label) {
		t.Fatalf("label should be lowercase: %q", label)
	}
}

func TestSkylinkToBase32_KnownValue(t *testing.T) {
	got, err := SkylinkToBase32(exampleSkylink)
	if err != nil {
		t.Fatal(err)
	}
	if got != "000ah0pqo256c3orhmmgpol19dslep1v32v52v23ohqur9uuuuc9bm8" {
		t.Fatalf("got %q", got)
	}
}

func TestResolver_HNSSubdomainURL(t *testing.T) {
	r := NewResolver("siasky.net")
	got, err := r.HNSSubdomainURL("note-to-self")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://note-to-self.hns.siasky.net" {
		t.Fatalf("got %q", got)
	}
	if _, err := r.HNSSubdomainURL("bad/name"); err == nil {
		t.Fatal("expected error for invalid name")
	}
}

func TestResolver_InvalidSkylink(t *testing.T) {
	r := NewResolver("siasky.net")
	for _, in := range []string{"", "short", strings.Repeat("!", 46)} {
		if _, err := r.SkylinkSubdomainURL(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestResolver_WithScheme(t *testing.T) {
	r := NewResolver("127.0.0.1:8080").WithScheme("http")
	if r.PortalURL() != "http://127.0.0.1:8080" {
		t.Fatalf("got %q", r.PortalURL())
	}
}
