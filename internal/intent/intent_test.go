package intent

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractOrderedGoals(t *testing.T) {
	s := Extract([]string{"I want to learn Blender, starting with sculpting, then animation later"})

	wantGoals := []string{"Blender", "Sculpting", "Animation"}
	if !reflect.DeepEqual(s.Goals, wantGoals) {
		t.Errorf("Goals = %v, want %v", s.Goals, wantGoals)
	}
	wantPriority := []string{"Sculpting", "Animation"}
	if !reflect.DeepEqual(s.Priority, wantPriority) {
		t.Errorf("Priority = %v, want %v", s.Priority, wantPriority)
	}
}

func TestExtractNoSignal(t *testing.T) {
	s := Extract([]string{"teach me something"})
	if !s.IsEmpty() {
		t.Errorf("expected empty summary, got %+v", s)
	}
	if got := s.String(); got != "" {
		t.Errorf("String() = %q, want empty", got)
	}
}

func TestExtractEmptyTranscript(t *testing.T) {
	if s := Extract(nil); !s.IsEmpty() {
		t.Errorf("expected empty summary for nil turns, got %+v", s)
	}
	if s := Extract([]string{"", "   "}); !s.IsEmpty() {
		t.Errorf("expected empty summary for blank turns, got %+v", s)
	}
}

func TestExtractLevelPrecedence(t *testing.T) {
	// When both match, the more cautious level wins.
	s := Extract([]string{"I'm a beginner at sculpting but advanced in Python"})
	if s.Level != LevelBeginner {
		t.Errorf("Level = %q, want %q", s.Level, LevelBeginner)
	}
}

func TestExtractLevelVariants(t *testing.T) {
	tests := []struct {
		turn string
		want string
	}{
		{"I'm completely new to 3D and have no experience", LevelBeginner},
		{"I have some experience with modeling", LevelIntermediate},
		{"I'm a professional animator", LevelAdvanced},
		{"just show me stuff about rendering", ""},
	}
	for _, tt := range tests {
		if s := Extract([]string{tt.turn}); s.Level != tt.want {
			t.Errorf("Extract(%q).Level = %q, want %q", tt.turn, s.Level, tt.want)
		}
	}
}

func TestExtractCueWithoutResolvableGoal(t *testing.T) {
	// Ordering cue present but nothing detectable after it.
	s := Extract([]string{"I want to learn Blender, starting with the basics"})
	if len(s.Priority) != 0 {
		t.Errorf("Priority = %v, want none", s.Priority)
	}
	if !reflect.DeepEqual(s.Goals, []string{"Blender"}) {
		t.Errorf("Goals = %v, want [Blender]", s.Goals)
	}
}

func TestExtractFollowOnMustDiffer(t *testing.T) {
	// Follow-on cue resolves back to the start goal; priority is dropped.
	s := Extract([]string{"start with sculpting and then more sculpting"})
	if len(s.Priority) != 0 {
		t.Errorf("Priority = %v, want none", s.Priority)
	}
}

func TestExtractPreferences(t *testing.T) {
	s := Extract([]string{"I learn best hands-on, ideally with a project and short lessons"})
	want := []string{"hands-on", "project-based", "short lessons"}
	if !reflect.DeepEqual(s.Preferences, want) {
		t.Errorf("Preferences = %v, want %v", s.Preferences, want)
	}
}

func TestExtractMultiTurnAccumulates(t *testing.T) {
	s := Extract([]string{
		"I want to learn Blender",
		"I'm a beginner",
		"mostly interested in sculpting",
	})
	if s.Level != LevelBeginner {
		t.Errorf("Level = %q, want Beginner", s.Level)
	}
	wantGoals := []string{"Blender", "Sculpting"}
	if !reflect.DeepEqual(s.Goals, wantGoals) {
		t.Errorf("Goals = %v, want %v", s.Goals, wantGoals)
	}
}

func TestSummaryString(t *testing.T) {
	s := Summary{
		Level:       LevelBeginner,
		Goals:       []string{"Blender", "Sculpting"},
		Priority:    []string{"Sculpting", "Animation"},
		Preferences: []string{"hands-on"},
	}
	got := s.String()
	wantLines := []string{
		"Level: Beginner",
		"Goals: Blender, Sculpting",
		"Priority: Sculpting -> Animation",
		"Preferences: hands-on",
	}
	if got != strings.Join(wantLines, "\n") {
		t.Errorf("String() = %q", got)
	}
}

func TestSummaryStringOmitsEmptyCategories(t *testing.T) {
	s := Summary{Goals: []string{"Rendering"}}
	if got := s.String(); got != "Goals: Rendering" {
		t.Errorf("String() = %q, want %q", got, "Goals: Rendering")
	}
}
