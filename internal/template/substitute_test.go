package template

import (
	"strings"
	"testing"

	"hogsim/internal/core"
)

func TestSubstitute_NoPlaceholders(t *testing.T) {
	text := "https://hogflix.test/pricing"
	result, err := newEngine(1).Substitute(text, core.NewVariables())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != text {
		t.Errorf("expected %q, got %q", text, result)
	}
}

func TestSubstitute_EntryURL(t *testing.T) {
	vars := core.NewVariables()
	vars.Set("base_url", "https://hogflix.test")
	vars.Set("utm_source", "newsletter")
	vars.Set("utm_medium", "email")

	result, err := newEngine(1).Substitute("${base_url}/?utm_source=${utm_source}&utm_medium=${utm_medium}&synthetic=1", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://hogflix.test/?utm_source=newsletter&utm_medium=email&synthetic=1"
	if result != want {
		t.Errorf("expected %q, got %q", want, result)
	}
}

func TestSubstitute_Functions(t *testing.T) {
	result, err := newEngine(2).Substitute("hog+${random_string(6)}@hogflix.test", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result, "hog+") || !strings.HasSuffix(result, "@hogflix.test") || len(result) != len("hog+@hogflix.test")+6 {
		t.Errorf("unexpected credential %q", result)
	}
}

func TestSubstitute_SameSeedSameOutput(t *testing.T) {
	tmpl := "${uuid()}/${random(1,1000)}/${random_string(8)}"
	a, _ := newEngine(9).Substitute(tmpl, nil)
	b, _ := newEngine(9).Substitute(tmpl, nil)
	if a != b {
		t.Errorf("expected identical output, got %q and %q", a, b)
	}
}

func TestSubstitute_EnvironmentVariable(t *testing.T) {
	t.Setenv("HOGSIM_TEMPLATE_TEST", "from-env")

	result, err := newEngine(1).Substitute("${env:HOGSIM_TEMPLATE_TEST}/x", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-env/x" {
		t.Errorf("expected 'from-env/x', got %q", result)
	}
}

func TestSubstitute_MissingJoinsErrors(t *testing.T) {
	_, err := newEngine(1).Substitute("${a}-${env:HOGSIM_DEFINITELY_UNSET}-${random(9,1)}", core.NewVariables())
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{`variable "a" not found`, `HOGSIM_DEFINITELY_UNSET`, "function random"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestSubstituteMap(t *testing.T) {
	vars := core.NewVariables()
	vars.Set("name", "Hedge Hog")

	out, err := newEngine(1).SubstituteMap(map[string]string{
		"name":  "${name}",
		"email": "hog@hogflix.test",
	}, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["name"] != "Hedge Hog" || out["email"] != "hog@hogflix.test" {
		t.Errorf("unexpected result %v", out)
	}

	if _, err := newEngine(1).SubstituteMap(map[string]string{"x": "${missing}"}, vars); err == nil {
		t.Error("expected error for missing variable")
	}

	out, err = newEngine(1).SubstituteMap(nil, vars)
	if out != nil || err != nil {
		t.Errorf("nil map should pass through, got %v %v", out, err)
	}
}

func TestSubstitute_QueryEscaped(t *testing.T) {
	vars := core.NewVariables()
	vars.Set("utm_campaign", "spring sale & more")

	result, err := newEngine(1).Substitute("/?utm_campaign=${q:utm_campaign}", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "/?utm_campaign=spring+sale+%26+more"; result != want {
		t.Errorf("expected %q, got %q", want, result)
	}

	if _, err := newEngine(1).Substitute("${q:missing}", vars); err == nil {
		t.Error("expected error for missing escaped variable")
	}
}
