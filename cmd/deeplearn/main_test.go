package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/deeplearn-app/deeplearn/internal/model"
	"github.com/deeplearn-app/deeplearn/internal/policy"
)

func TestBuildPolicies(t *testing.T) {
	ps, err := buildPolicies(model.EngineConfig{
		Mode:            "either-or",
		EthicsMode:      "reason&selection",
		MinReasonLength: 12,
	})
	if err != nil {
		t.Fatalf("buildPolicies: %v", err)
	}
	if ps[model.TagPre] != ps[model.TagPost] {
		t.Error("pre and post should share one policy")
	}
	if ps[model.TagPre].Mode.Name != policy.EitherOr.Name {
		t.Errorf("unexpected detection mode %q", ps[model.TagPre].Mode.Name)
	}
	if ps[model.TagEthics].Mode.Name != "reason&selection" || ps[model.TagEthics].MinReasonLength != 12 {
		t.Errorf("unexpected ethics policy: %+v", ps[model.TagEthics])
	}
	if ps[model.TagEthics].NothingLabel != policy.DefaultNothingLabel {
		t.Errorf("expected default nothing label, got %q", ps[model.TagEthics].NothingLabel)
	}

	if _, err := buildPolicies(model.EngineConfig{Mode: "vibes", EthicsMode: "reason"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCatalogCommand(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"catalog", "post", "--format", "json", "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var sum catalogSummary
	if err := json.Unmarshal(out.Bytes(), &sum); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if sum.Name != "post" || len(sum.Groups) != 10 {
		t.Errorf("expected 10 built-in groups for post, got %q with %d", sum.Name, len(sum.Groups))
	}
}

func TestCatalogCommandRejectsUnknownTag(t *testing.T) {
	root := rootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"catalog", "midterm"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unknown tag")
	}
}
