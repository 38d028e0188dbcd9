package domain

import "testing"

func TestDominantType(t *testing.T) {
	tests := []struct {
		name    string
		profile Big5Profile
		want    PersonalityType
	}{
		{"high openness", Big5Profile{Openness: 90, Conscientiousness: 40, Extraversion: 60, Agreeableness: 70, Neuroticism: 30}, TypeVisionary},
		{"high conscientiousness", Big5Profile{Openness: 80, Conscientiousness: 90, Extraversion: 40, Agreeableness: 50, Neuroticism: 60}, TypeArchitect},
		{"high extraversion", Big5Profile{Openness: 10, Conscientiousness: 20, Extraversion: 95, Agreeableness: 30, Neuroticism: 50}, TypeCatalyst},
		{"high agreeableness", Big5Profile{Openness: 20, Conscientiousness: 30, Extraversion: 10, Agreeableness: 80, Neuroticism: 60}, TypeMediator},
		{"low neuroticism wins as stability", Big5Profile{Openness: 40, Conscientiousness: 40, Extraversion: 40, Agreeableness: 40, Neuroticism: 5}, TypeAnchor},
		{"neutral ties resolve to openness", NeutralProfile(), TypeVisionary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.DominantType(); got != tt.want {
				t.Errorf("DominantType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBig5ProfileValid(t *testing.T) {
	if !NeutralProfile().Valid() {
		t.Error("neutral profile must be valid")
	}
	if (Big5Profile{Openness: -1}).Valid() {
		t.Error("negative score must be invalid")
	}
	if (Big5Profile{Neuroticism: 101}).Valid() {
		t.Error("score above 100 must be invalid")
	}
}

func TestParseModelVariant(t *testing.T) {
	tests := []struct {
		in     string
		want   ModelVariant
		wantOK bool
	}{
		{"standard", VariantStandard, true},
		{"pro", VariantPro, true},
		{"", VariantStandard, true},
		{"turbo", VariantStandard, false},
	}
	for _, tt := range tests {
		got, ok := ParseModelVariant(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseModelVariant(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
