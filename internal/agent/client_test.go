package agent

import "testing"

func TestResolveReply(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"reply field", `{"reply":"Здравствуйте!"}`, "Здравствуйте!"},
		{"text fallback", `{"text":"hi"}`, "hi"},
		{"reply wins over text", `{"reply":"a","text":"b"}`, "a"},
		{"empty reply falls through", `{"reply":"","text":"b"}`, "b"},
		{"whitespace reply kept", `{"reply":"  ","text":"b"}`, "  "},
		{"unknown object verbatim", `{"answer":"x"}`, `{"answer":"x"}`},
		{"json string", `"plain"`, "plain"},
		{"array verbatim", `[1,2]`, `[1,2]`},
		{"non json text", "just words", "just words"},
		{"empty body", "", EmptyReply},
		{"null", "null", EmptyReply},
		{"blank json string", `"  "`, EmptyReply},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveReply([]byte(tc.body)); got != tc.want {
				t.Fatalf("ResolveReply(%q) = %q, want %q", tc.body, got, tc.want)
			}
		})
	}
}
