package dept

import "testing"

func TestNormalizeStripsCaseAndPunctuation(t *testing.T) {
	cases := map[string]string{
		"QA":                   "qa",
		"Quality Assurance":    "qa",
		"qa/testing":           "qa",
		"Testing":              "qa",
		"R & D":                "research",
		"r&d":                  "research",
		"Software Development": "development",
		"Dev":                  "development",
		"UI/UX":                "design",
		"Blockchain":           "blockchain",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAliasSymmetry(t *testing.T) {
	for _, class := range aliasClasses {
		for _, a := range class {
			for _, b := range class {
				if !Matches(a, b) {
					t.Errorf("Matches(%q,%q) = false, want true", a, b)
				}
				if !Matches(b, a) {
					t.Errorf("Matches(%q,%q) = false, want true", b, a)
				}
			}
		}
	}
}

func TestNoCrossClassMatch(t *testing.T) {
	pairs := [][2]string{
		{"QA", "Development"},
		{"Testing", "Design"},
		{"R&D", "Marketing"},
		{"DevOps", "Mobile"},
	}
	for _, p := range pairs {
		if Matches(p[0], p[1]) {
			t.Errorf("Matches(%q,%q) = true, want false", p[0], p[1])
		}
	}
}

func TestUnknownLabels(t *testing.T) {
	if !Matches("Blockchain", "blockchain") {
		t.Errorf("identical unknown labels should match")
	}
	if Matches("Blockchain", "Development") {
		t.Errorf("unknown label should not match a known class")
	}
	if Matches("Blockchain", "Astrophysics") {
		t.Errorf("distinct unknown labels should not match")
	}
}

func TestMatchesAny(t *testing.T) {
	approves := []string{"Design", "QA"}
	if !MatchesAny("Testing", approves) {
		t.Errorf("Testing should match QA via alias class")
	}
	if MatchesAny("Development", approves) {
		t.Errorf("Development should not match Design or QA")
	}
}
