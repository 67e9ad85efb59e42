package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store/storetest"
)

const policyYAML = `
policies:
  - page: Sleep
    test_id: sleep-cta-1
    variants: [a, b]
    lock_enabled: true
    lock_ttl_hours: 72
  - page: joint
    test_id: joint-cta-1
    variants: [a, b, c]
    min_enters_per_variant: 100
    min_abs_lift: 0.05
    active: false
`

func TestParsePolicyFile(t *testing.T) {
	specs, err := parsePolicyFile(strings.NewReader(policyYAML))
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "Sleep", specs[0].Page)
	assert.True(t, specs[0].LockEnabled)
	require.NotNil(t, specs[0].LockTTLHours)
	assert.Equal(t, 72, *specs[0].LockTTLHours)
	assert.Nil(t, specs[0].Active)

	require.NotNil(t, specs[1].MinEntersPerVariant)
	assert.Equal(t, 100, *specs[1].MinEntersPerVariant)
	require.NotNil(t, specs[1].Active)
	assert.False(t, *specs[1].Active)
}

func TestParsePolicyFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty"},
		{"no policies", "policies: []\n", "no policies"},
		{"unknown field", "policies:\n  - page: sleep\n    min_lift: 0.1\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePolicyFile(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPolicySpec_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec policySpec
		want string
	}{
		{"missing page", policySpec{TestID: "x", Variants: []string{"a", "b"}}, "page is required"},
		{"missing test id", policySpec{Page: "sleep", Variants: []string{"a", "b"}}, "test_id is required"},
		{"one variant", policySpec{Page: "sleep", TestID: "x", Variants: []string{"a", " a ", ""}}, "at least 2 variants"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.experiment()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPolicySpec_Experiment(t *testing.T) {
	exp, err := policySpec{Page: " Sleep ", TestID: "sleep-cta-1", Variants: []string{"a", "b", "a"}}.experiment()
	require.NoError(t, err)

	assert.Equal(t, "sleep", exp.Page)
	assert.Equal(t, `["a","b"]`, exp.Variants)
	assert.True(t, exp.Active)
	assert.Nil(t, exp.MinEntersPerVariant)
}

func TestSavePolicies(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	specs, err := parsePolicyFile(strings.NewReader(policyYAML))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, savePolicies(ctx, s, &out, specs))
	assert.Contains(t, out.String(), "Saved policy 'sleep' (sleep-cta-1) with 2 variants")
	assert.Contains(t, out.String(), "Saved policy 'joint' (joint-cta-1) with 3 variants")

	p, err := experiment.NewPolicyReader(s).Active(ctx, "sleep")
	require.NoError(t, err)
	assert.Equal(t, experiment.DefaultMinEntersPerVariant, p.MinEntersPerVariant)
	assert.True(t, p.LockEnabled)

	_, err = experiment.NewPolicyReader(s).Active(ctx, "joint")
	assert.ErrorIs(t, err, experiment.ErrNoExperiment)
}

func TestSavePolicies_InvalidEntryWritesNothing(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	specs := []policySpec{
		{Page: "sleep", TestID: "sleep-cta-1", Variants: []string{"a", "b"}},
		{Page: "joint", Variants: []string{"a", "b"}},
	}

	var out bytes.Buffer
	require.Error(t, savePolicies(ctx, s, &out, specs))

	exps, err := s.ListExperiments(ctx)
	require.NoError(t, err)
	assert.Empty(t, exps)
	assert.Empty(t, out.String())
}

func TestPrintPolicies(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, printPolicies(ctx, s, &out))
	assert.Contains(t, out.String(), "No policies yet.")

	specs, err := parsePolicyFile(strings.NewReader(policyYAML))
	require.NoError(t, err)
	require.NoError(t, savePolicies(ctx, s, &bytes.Buffer{}, specs))

	out.Reset()
	require.NoError(t, printPolicies(ctx, s, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PAGE")
	assert.Regexp(t, `^joint\s+joint-cta-1\s+DISABLED\s+3\s+100\s+5\.0%\s+off`, lines[1])
	assert.Regexp(t, `^sleep\s+sleep-cta-1\s+ACTIVE\s+2\s+50\s+2\.0%\s+72h`, lines[2])
}
