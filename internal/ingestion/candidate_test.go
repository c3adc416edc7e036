package ingestion

import (
	"strings"
	"testing"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

func TestResolve_NameFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "First line is the name",
			text: "Jane Doe\nSoftware Engineer\njane@example.com",
			want: "Jane Doe",
		},
		{
			name: "Document headers are skipped",
			text: "RESUME\n\nCurriculum\nMary Ann Jones\nNairobi",
			want: "Mary Ann Jones",
		},
		{
			name: "Section heading prefix is rejected",
			text: "Profile Summary\nJohn Smith",
			want: "John Smith",
		},
		{
			name: "Apostrophes and hyphens in a single token",
			text: "O'Brien-Smith\nData Analyst",
			want: "O'Brien-Smith",
		},
		{
			name: "Surrounding whitespace is trimmed",
			text: "   \n\t  Ada Lovelace  \n",
			want: "Ada Lovelace",
		},
		{
			name: "Email line is never a name",
			text: "Jane@Example.com\nPeter Parker",
			want: "Peter Parker",
		},
		{
			name: "Line starting with a digit is never a name",
			text: "2024 Graduate\nGrace Hopper",
			want: "Grace Hopper",
		},
		{
			name: "URL and brackets are rejected",
			text: "Https Portfolio\nAlan Turing (PhD)\nAlan Turing",
			want: "Alan Turing",
		},
		{
			name: "Too many tokens",
			text: "Senior Backend Engineer With Experience\nLinus Torvalds",
			want: "Linus Torvalds",
		},
		{
			name: "Lowercase start is rejected",
			text: "jane doe\nJane Doe",
			want: "Jane Doe",
		},
		{
			name: "Punctuation inside tokens is rejected",
			text: "Dr. Who\nClara Oswald",
			want: "Clara Oswald",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.text, "someone@example.com")
			if got.Name != tt.want {
				t.Errorf("Resolve() name = %q, want %q", got.Name, tt.want)
			}
			if got.Email != "someone@example.com" {
				t.Errorf("Resolve() email = %q, want the fallback email", got.Email)
			}
		})
	}
}

func TestResolve_OnlyFirstTenLinesAreScanned(t *testing.T) {
	lines := make([]string, 0, 11)
	for i := 0; i < 10; i++ {
		lines = append(lines, "Experience")
	}
	lines = append(lines, "Jane Doe")

	got := Resolve(strings.Join(lines, "\n"), "12@example.com")
	if got.Name != models.UnknownCandidate {
		t.Errorf("Expected sentinel name when the name is on line 11, got %q", got.Name)
	}
}

func TestResolve_NameFromEmail(t *testing.T) {
	headersOnly := "Resume\nCV\nbio\n\nSkills\nEducation"

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "Dot separated", email: "jane.doe@x.com", want: "Jane Doe"},
		{name: "Underscore separated", email: "JOHN_SMITH@x.com", want: "John Smith"},
		{name: "Single letter run splits greedily", email: "johndoe@x.com", want: "Johndo E"},
		{name: "Default sender", email: models.UnknownSender, want: "Unknow N"},
		{name: "Local part with digits", email: "jsmith99@x.com", want: models.UnknownCandidate},
		{name: "Three dotted words", email: "john.doe.smith@x.com", want: models.UnknownCandidate},
		{name: "Short local part", email: "12@x.com", want: models.UnknownCandidate},
		{name: "No at sign", email: "not-an-address", want: models.UnknownCandidate},
		{name: "Empty email", email: "", want: models.UnknownCandidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(headersOnly, tt.email)
			if got.Name != tt.want {
				t.Errorf("Resolve() name = %q, want %q", got.Name, tt.want)
			}
			if got.Email != tt.email {
				t.Errorf("Resolve() email = %q, want %q", got.Email, tt.email)
			}
		})
	}
}

func TestResolve_NeverEmptyName(t *testing.T) {
	inputs := []struct{ text, email string }{
		{"", ""},
		{"\n\n\n", "@"},
		{"123\n456", "1@2"},
		{"{}", "..@.."},
	}

	for _, in := range inputs {
		if got := Resolve(in.text, in.email); got.Name == "" {
			t.Errorf("Resolve(%q, %q) returned an empty name", in.text, in.email)
		}
	}
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"jane":  "Jane",
		"DOE":   "Doe",
		"mCkay": "Mckay",
		"":      "",
	}

	for in, want := range tests {
		if got := titleCase(in); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}
