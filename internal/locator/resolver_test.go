// internal/locator/resolver_test.go
package locator

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

func TestConvention_Field(t *testing.T) {
	r := NewConvention(nil)

	assert.Equal(t, dom.ID("product_name"), r.Field("Name"))
	assert.Equal(t, dom.ID("product_product_name"), r.Field("Product Name"))
	assert.Equal(t, dom.ID("product_available"), r.Field("AVAILABLE"))
	assert.Equal(t, dom.ID("product_"), r.Field(""))
}

func TestConvention_Button(t *testing.T) {
	r := NewConvention(nil)

	assert.Equal(t, dom.ID("clear-btn"), r.Button("Clear"))
	assert.Equal(t, dom.ID("search-all-btn"), r.Button("Search All"))
	assert.Equal(t, dom.ID("-btn"), r.Button(""))
}

func TestConvention_Candidates(t *testing.T) {
	r := NewConvention(nil)

	t.Run("Message", func(t *testing.T) {
		want := CandidateList{dom.ID("flash_message"), dom.ID("message"), dom.ID("flash"), dom.Body}
		if diff := cmp.Diff(want, r.Candidates(RoleMessage)); diff != "" {
			t.Errorf("message candidates mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Results", func(t *testing.T) {
		want := CandidateList{dom.ID("search_results"), dom.ID("results"), dom.Body}
		if diff := cmp.Diff(want, r.Candidates(RoleResults)); diff != "" {
			t.Errorf("results candidates mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("UnknownRoleFallsBackToBody", func(t *testing.T) {
		assert.Equal(t, CandidateList{dom.Body}, r.Candidates(Role("sidebar")))
	})

	t.Run("ReturnsFreshCopy", func(t *testing.T) {
		first := r.Candidates(RoleResults)
		first[0] = dom.ID("mutated")
		assert.Equal(t, dom.ID("search_results"), r.Candidates(RoleResults)[0])
	})

	t.Run("CustomStrategies", func(t *testing.T) {
		custom := NewConvention(Strategies{RoleResults: {dom.CSS("table.results")}})
		assert.Equal(t, CandidateList{dom.CSS("table.results"), dom.Body}, custom.Candidates(RoleResults))
		assert.Equal(t, CandidateList{dom.Body}, custom.Candidates(RoleMessage))
	})
}

func TestFieldID_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z][A-Za-z0-9 ]{0,20}`).Draw(rt, "name")

		got := FieldID(name)
		want := "product_" + strings.ReplaceAll(strings.ToLower(name), " ", "_")
		if got != want {
			rt.Fatalf("FieldID(%q) = %q, want %q", name, got, want)
		}
		if FieldID(name) != got {
			rt.Fatalf("FieldID(%q) is not deterministic", name)
		}
		if strings.Contains(got, " ") {
			rt.Fatalf("FieldID(%q) = %q contains a space", name, got)
		}
		if FieldID(strings.ToUpper(name)) != got {
			rt.Fatalf("FieldID is case sensitive for %q", name)
		}
	})
}

func TestButtonID_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		label := rapid.StringMatching(`[A-Za-z][A-Za-z0-9 ]{0,20}`).Draw(rt, "label")

		got := ButtonID(label)
		want := strings.ReplaceAll(strings.ToLower(label), " ", "-") + "-btn"
		if got != want {
			rt.Fatalf("ButtonID(%q) = %q, want %q", label, got, want)
		}
		if !strings.HasSuffix(got, ButtonSuffix) {
			rt.Fatalf("ButtonID(%q) = %q lacks the suffix", label, got)
		}
	})
}
