package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/deeplearn-app/deeplearn/internal/policy"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NotReady"); got != "Your answer isn't ready to submit yet." {
		t.Errorf("T(NotReady) = %q", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "NotReady"); got != "Tu respuesta todavía no está lista para enviar." {
		t.Errorf("T(NotReady) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "CasesAnswered", 1); got != "1 case answered." {
		t.Errorf("Tp(CasesAnswered, 1) = %q", got)
	}
	if got := Tp(ctx, "CasesAnswered", 10); got != "10 cases answered." {
		t.Errorf("Tp(CasesAnswered, 10) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "MissingReason", map[string]any{"MinLength": 10})
	if got != "Explain your reasoning in at least 10 characters." {
		t.Errorf("Td(MissingReason) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMissingRequirements(t *testing.T) {
	ctx := initLang(t, "en")

	got := Missing(ctx, []policy.MissingRequirement{{
		Requirement: policy.RequireAnyOf,
		Options: []policy.MissingRequirement{
			{Requirement: policy.RequireClue},
			{Requirement: policy.RequireReason, MinLength: 10},
		},
	}})
	want := []string{
		"Do one of these: Pick at least one clue, or describe one in your own words. " +
			"Explain your reasoning in at least 10 characters.",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Missing = %q, want %q", got, want)
	}
}

func TestMissingGroupedRequirements(t *testing.T) {
	missing := []policy.MissingRequirement{{
		Requirement: policy.RequireAnyOf,
		Options: []policy.MissingRequirement{
			{Requirement: policy.RequireAllOf, Parts: []policy.MissingRequirement{
				{Requirement: policy.RequireSelection},
				{Requirement: policy.RequireClue},
			}},
			{Requirement: policy.RequireReason, MinLength: 10},
		},
	}}

	tests := []struct {
		lang string
		want string
	}{
		{"en", "Do one of these: All of these together: Select the clip you think is fake, if any. " +
			"Pick at least one clue, or describe one in your own words. " +
			"Explain your reasoning in at least 10 characters."},
		{"es", "Haz una de estas cosas: Todas estas cosas juntas: Selecciona el video que crees que es falso, si hay alguno. " +
			"Elige al menos una pista o describe una con tus palabras. " +
			"Explica tu razonamiento con al menos 10 caracteres."},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			got := Missing(ctx, missing)
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("Missing = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "SessionNotFound")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Sesión no encontrada." {
		t.Errorf("expected Spanish, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Session not found." {
		t.Errorf("expected English fallback, got %q", got)
	}
}
