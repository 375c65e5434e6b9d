package namespace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-provisioner/internal/config"
)

type fakeRegistry struct {
	mu    sync.Mutex
	taken map[string]string
	err   error
}

func newFakeRegistry(taken ...string) *fakeRegistry {
	r := &fakeRegistry{taken: map[string]string{}}
	for _, s := range taken {
		r.taken[s] = "other"
	}
	return r
}

func (r *fakeRegistry) SubdomainTaken(_ context.Context, subdomain, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	owner, ok := r.taken[subdomain]
	return ok && owner != excludeID, nil
}

func newTestAllocator(reg TakenChecker) *Allocator {
	return NewAllocator(reg, &config.NamespaceConfig{BaseDomain: "pixone.com", MaxLength: 63, SuggestionCount: 5})
}

func TestCheck_Available(t *testing.T) {
	a := newTestAllocator(newFakeRegistry())

	res, err := a.Check(context.Background(), "  Acme ")
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, "acme", res.Subdomain)
	assert.Equal(t, "acme.pixone.com", res.FullDomain)
	assert.Empty(t, res.Reason)
	assert.Empty(t, res.Suggestions)
}

func TestCheck_Taken(t *testing.T) {
	a := newTestAllocator(newFakeRegistry("acme", "acme2"))

	res, err := a.Check(context.Background(), "acme")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, ReasonTaken, res.Reason)
	assert.Equal(t, []string{"acme1", "acme3", "acme4", "acme5", "acme6"}, res.Suggestions)
}

func TestCheck_Reserved(t *testing.T) {
	a := newTestAllocator(newFakeRegistry())

	res, err := a.Check(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, ReasonReserved, res.Reason)
	assert.NotEmpty(t, res.Suggestions)
	assert.NotContains(t, res.Suggestions, "admin")
}

func TestCheck_ReservedExtra(t *testing.T) {
	a := NewAllocator(newFakeRegistry(), &config.NamespaceConfig{ReservedExtra: []string{" Partner "}})

	res, err := a.Check(context.Background(), "partner")
	require.NoError(t, err)
	assert.Equal(t, ReasonReserved, res.Reason)
	assert.Equal(t, "pixone.com", a.BaseDomain())
	assert.Equal(t, 63, a.MaxLength())
}

func TestCheck_LengthAndFormat(t *testing.T) {
	a := newTestAllocator(newFakeRegistry())
	ctx := context.Background()

	res, err := a.Check(ctx, "ab")
	require.NoError(t, err)
	assert.Equal(t, ReasonTooShort, res.Reason)
	assert.Empty(t, res.Suggestions)

	res, err = a.Check(ctx, strings.Repeat("a", 64))
	require.NoError(t, err)
	assert.Equal(t, ReasonTooLong, res.Reason)
	assert.Empty(t, res.Suggestions)

	res, err = a.Check(ctx, "Acme Corp!")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidFormat, res.Reason)
	assert.Equal(t, "acme-corp1", res.Suggestions[0])

	res, err = a.Check(ctx, "-acme")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidFormat, res.Reason)
}

func TestSuggestions_Deterministic(t *testing.T) {
	a := newTestAllocator(newFakeRegistry("acme1"))
	ctx := context.Background()

	first, err := a.Suggestions(ctx, "acme", 5)
	require.NoError(t, err)
	second, err := a.Suggestions(ctx, "acme", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"acme2", "acme3", "acme4", "acme5", "acme6"}, first)
}

func TestSuggestions_QualifiersAfterNumbers(t *testing.T) {
	var occupied []string
	for i := 1; i <= 99; i++ {
		occupied = append(occupied, fmt.Sprintf("acme%d", i))
	}
	a := newTestAllocator(newFakeRegistry(occupied...))

	got, err := a.Suggestions(context.Background(), "acme", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-hq", "acme-erp", "acme-app"}, got)
}

func TestSuggestions_RespectsMaxLength(t *testing.T) {
	a := NewAllocator(newFakeRegistry(), &config.NamespaceConfig{MaxLength: 6})

	got, err := a.Suggestions(context.Background(), "acmes", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"acmes1", "acmes2", "acmes3"}, got)

	got, err = a.Suggestions(context.Background(), "acmeco", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheck_PropagatesLookupError(t *testing.T) {
	reg := newFakeRegistry()
	reg.err = errors.New("db down")
	a := newTestAllocator(reg)

	_, err := a.Check(context.Background(), "acme")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	reg := newFakeRegistry()
	reg.taken["acme"] = "tenant-1"
	a := newTestAllocator(reg)
	ctx := context.Background()

	_, err := a.Validate(ctx, "acme", "")
	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, ReasonTaken, allocErr.Reason)
	assert.NotEmpty(t, allocErr.Suggestions)

	slug, err := a.Validate(ctx, "ACME", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", slug)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Pixfar Ltd.":              "pixfar-ltd",
		"Café Ümlaut":              "cafe-umlaut",
		"  --Hello   World-- ":     "hello-world",
		"Acme & Sons, Inc.":        "acme-sons-inc",
		"already-a-slug":           "already-a-slug",
		"!!!":                      "",
		"Pixfar Technologies Ltd.": "pixfar-technologies-ltd",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestSuggestForName(t *testing.T) {
	a := newTestAllocator(newFakeRegistry())
	ctx := context.Background()

	base, got, err := a.SuggestForName(ctx, "Pixfar Technologies Ltd.", 3)
	require.NoError(t, err)
	assert.Equal(t, "pixfar-technologies-ltd", base)
	require.Len(t, got, 3)
	assert.Equal(t, "pixfar-technologies-ltd", got[0].Subdomain)
	assert.Equal(t, "pixfar-technologies-ltd1", got[1].Subdomain)
	assert.Equal(t, "pixfar-technologies-ltd.pixone.com", got[0].FullDomain)
	assert.True(t, got[0].Available)

	_, got, err = a.SuggestForName(ctx, "Globex", 50)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestSuggestForName_TakenBaseAndInvalid(t *testing.T) {
	a := newTestAllocator(newFakeRegistry("globex"))
	ctx := context.Background()

	_, got, err := a.SuggestForName(ctx, "Globex", 2)
	require.NoError(t, err)
	assert.Equal(t, "globex1", got[0].Subdomain)
	assert.Equal(t, "globex2", got[1].Subdomain)

	_, _, err = a.SuggestForName(ctx, "!", 5)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestSuggestForName_Truncates(t *testing.T) {
	a := NewAllocator(newFakeRegistry(), &config.NamespaceConfig{MaxLength: 10})

	base, _, err := a.SuggestForName(context.Background(), "abcdefghi jklmn", 1)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", base)
}
