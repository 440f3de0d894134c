package event

import "testing"

func TestSanitizeCommandText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "register PROJ-1", "register PROJ-1"},
		{"leading mention", "<@U123ABC> register PROJ-1", "register PROJ-1"},
		{"two mentions", "<@U1> <@U2> register PROJ-1", "register PROJ-1"},
		{"labeled link alone", "<https://x|PROJ-1>", "PROJ-1"},
		{"bare link alone", "<https://x>", "https://x"},
		{"labeled link", "register PROJ-1 see <https://example.com/doc|the doc>", "register PROJ-1 see the doc"},
		{"bare link", "register PROJ-1 <https://example.com/doc>", "register PROJ-1 https://example.com/doc"},
		{"whitespace runs", "register   PROJ-1  \t extra", "register PROJ-1 extra"},
		{"mention only", "<@U123ABC>", ""},
		{"mention mid-text", "hey <@U123ABC> register PROJ-1", "hey register PROJ-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeCommandText(tc.in); got != tc.want {
				t.Fatalf("sanitizeCommandText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMentionInferSubtype(t *testing.T) {
	cases := []struct {
		name        string
		text        string
		wantCommand string
		wantArgs    string
	}{
		{"command with args", "<@U123> register PROJ-1 extra text", "register", "PROJ-1 extra text"},
		{"command only", "<@U123> deregister", "deregister", ""},
		{"empty after sanitize", "<@U123>", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			command, args := mentionKind{}.inferSubtype(Payload{"text": tc.text})
			if command != tc.wantCommand || args != tc.wantArgs {
				t.Fatalf("inferSubtype(%q) = (%q, %q), want (%q, %q)",
					tc.text, command, args, tc.wantCommand, tc.wantArgs)
			}
		})
	}
}
