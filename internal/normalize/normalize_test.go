package normalize

import "testing"

func TestEmail(t *testing.T) {
	in := "  John.DOE@Example.COM  "
	want := "john.doe@example.com"
	got := Email(in)
	if got != want {
		t.Fatalf("Normalize.Email(%q) = %q, want %q", in, got, want)
	}
}

func TestTextKeepsMessageVerbatim(t *testing.T) {
	cases := []string{
		"",
		"hi",
		"a < b & c",
		"if a<b and c>d then",
		"x <y> z",
		"literal &amp; entity",
		"<script>alert(1)</script>hello",
		"  spaced  \n",
		"héllo 👋",
	}
	for _, in := range cases {
		if got := Text(in); got != in {
			t.Fatalf("Text(%q) = %q, want it unchanged", in, got)
		}
	}
}

func TestTextDropsUnstorableBytes(t *testing.T) {
	cases := map[string]string{
		"a\x00b":     "ab",
		"ok\xffdone": "okdone",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Fatalf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}
