package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser/resolver"
	"github.com/xkilldash9x/dusk/internal/mocks"
)

func newResolver(t *testing.T, prefix string) (*resolver.Resolver, *mocks.MockElementFinder) {
	t.Helper()
	finder := new(mocks.MockElementFinder)
	return resolver.New(finder, prefix, zaptest.NewLogger(t)), finder
}

func TestFormat(t *testing.T) {
	testCases := []struct {
		name     string
		prefix   string
		elements map[string]string
		selector string
		expected string
	}{
		{
			name:     "empty selector resolves to prefix",
			prefix:   "body",
			selector: "",
			expected: "body",
		},
		{
			name:     "implicit dusk shortcut",
			prefix:   "body",
			selector: "@modal",
			expected: `body [dusk="modal"]`,
		},
		{
			name:     "longest alias wins",
			prefix:   "body",
			elements: map[string]string{"@btn": "#b", "@btn-submit": "#bs"},
			selector: "@btn-submit",
			expected: "body #bs",
		},
		{
			name:     "short alias still applies on its own",
			prefix:   "body",
			elements: map[string]string{"@btn": "#b", "@btn-submit": "#bs"},
			selector: "@btn",
			expected: "body #b",
		},
		{
			name:     "aliases inside compound selectors",
			prefix:   "body",
			elements: map[string]string{"@list": "ul.items"},
			selector: "@list > li",
			expected: "body ul.items > li",
		},
		{
			name:     "plain css is only prefixed",
			prefix:   "body .modal",
			elements: map[string]string{"@title": "h1"},
			selector: "body .modal form input",
			expected: "body .modal body .modal form input",
		},
		{
			name:     "shortcut stops at the second at-sign",
			prefix:   "body",
			selector: "@first@second",
			expected: `body [dusk="first"]`,
		},
		{
			name:     "empty prefix leaves selector untouched",
			prefix:   "",
			selector: "#main",
			expected: "#main",
		},
		{
			name:     "prefix is trimmed",
			prefix:   "  body  ",
			selector: "p",
			expected: "body p",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newResolver(t, tc.prefix)
			r.SetElements(tc.elements)
			assert.Equal(t, tc.expected, r.Format(tc.selector))
			// Pure: repeated calls agree.
			assert.Equal(t, tc.expected, r.Format(tc.selector))
		})
	}
}

func TestElementsIsolation(t *testing.T) {
	r, _ := newResolver(t, "body")
	source := map[string]string{"@a": "#a"}
	r.SetElements(source)
	source["@b"] = "#b"

	got := r.Elements()
	assert.Equal(t, map[string]string{"@a": "#a"}, got)
	got["@c"] = "#c"
	assert.NotContains(t, r.Elements(), "@c")
}

func TestFindAndFindOrFail(t *testing.T) {
	ctx := context.Background()

	t.Run("FindSwallowsErrors", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body .gone").
			Return(nil, errors.New("session crashed"))

		el, ok := r.Find(ctx, ".gone")
		assert.False(t, ok)
		assert.Nil(t, el)
	})

	t.Run("FindOrFailReportsQualifiedSelector", func(t *testing.T) {
		r, finder := newResolver(t, "body .card")
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body .card p").
			Return(nil, schemas.ErrNoSuchElement)

		_, err := r.FindOrFail(ctx, "p")
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrNoSuchElement)
		var nf *schemas.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "body .card p", nf.Selector)
	})

	t.Run("IDShortcutBypassesScope", func(t *testing.T) {
		r, finder := newResolver(t, "body .card")
		el := new(mocks.MockElement)
		finder.On("FindElement", mock.Anything, schemas.ByID, "main").Return(el, nil)

		got, err := r.FindOrFail(ctx, "#main")
		require.NoError(t, err)
		assert.Same(t, el, got)
		finder.AssertNotCalled(t, "FindElement", mock.Anything, schemas.ByCSSSelector, mock.Anything)
	})

	t.Run("EmptySelectorResolvesScope", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		el := new(mocks.MockElement)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body").Return(el, nil)

		got, err := r.FindOrFail(ctx, "")
		require.NoError(t, err)
		assert.Same(t, el, got)
	})
}

func TestFirstOrFail(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsLastFailure", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		firstErr := errors.New("first")
		lastErr := errors.New("last")
		finder.On("FindElement", mock.Anything, schemas.ByID, "missing").Return(nil, firstErr)
		finder.On("FindElement", mock.Anything, schemas.ByID, "also-missing").Return(nil, lastErr)

		_, err := r.FirstOrFail(ctx, []string{"#missing", "#also-missing"})
		require.Error(t, err)
		assert.ErrorIs(t, err, lastErr)
		assert.NotErrorIs(t, err, firstErr)
		var nf *schemas.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "#also-missing", nf.Selector)
	})

	t.Run("StopsAtFirstMatch", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		el := new(mocks.MockElement)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body .a").Return(el, nil)

		got, err := r.FirstOrFail(ctx, []string{".a", ".b"})
		require.NoError(t, err)
		assert.Same(t, el, got)
		finder.AssertNumberOfCalls(t, "FindElement", 1)
	})

	t.Run("EmptyCandidateList", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		_, err := r.FirstOrFail(ctx, nil)
		assert.ErrorIs(t, err, schemas.ErrInvalidArgument)
		finder.AssertNumberOfCalls(t, "FindElement", 0)
	})
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	r, finder := newResolver(t, "body")
	a, b := new(mocks.MockElement), new(mocks.MockElement)
	finder.On("FindElements", mock.Anything, schemas.ByCSSSelector, "body li").
		Return([]schemas.Element{a, b}, nil)
	finder.On("FindElements", mock.Anything, schemas.ByCSSSelector, "body broken[").
		Return(nil, errors.New("invalid selector"))

	assert.Len(t, r.All(ctx, "li"), 2)
	got := r.All(ctx, "broken[")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolveForTyping(t *testing.T) {
	ctx := context.Background()

	t.Run("FallsBackThroughCandidates", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		el := new(mocks.MockElement)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body input[name='bio']").
			Return(nil, schemas.ErrNoSuchElement)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body textarea[name='bio']").
			Return(el, nil)

		got, err := r.ResolveForTyping(ctx, "bio")
		require.NoError(t, err)
		assert.Same(t, el, got)
	})

	t.Run("IDShortcutFirst", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		el := new(mocks.MockElement)
		finder.On("FindElement", mock.Anything, schemas.ByID, "email").Return(el, nil)

		got, err := r.ResolveForTyping(ctx, "#email")
		require.NoError(t, err)
		assert.Same(t, el, got)
		finder.AssertNumberOfCalls(t, "FindElement", 1)
	})

	t.Run("QuotesFieldNames", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		el := new(mocks.MockElement)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, `body input[name='o\'brien']`).
			Return(el, nil)

		got, err := r.ResolveForTyping(ctx, "o'brien")
		require.NoError(t, err)
		assert.Same(t, el, got)
	})
}

func TestResolveForField(t *testing.T) {
	ctx := context.Background()
	r, finder := newResolver(t, "body")
	el := new(mocks.MockElement)
	for _, sel := range []string{"input", "textarea", "select"} {
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body "+sel+"[name='role']").
			Return(nil, schemas.ErrNoSuchElement)
	}
	finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body button[name='role']").Return(el, nil)

	got, err := r.ResolveForField(ctx, "role")
	require.NoError(t, err)
	assert.Same(t, el, got)
}

func TestResolveForRadioSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingValueFailsBeforeLookup", func(t *testing.T) {
		r, finder := newResolver(t, "body")

		_, err := r.ResolveForRadioSelection(ctx, "#size")
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrInvalidArgument)
		assert.Equal(t, "No value was provided for radio button [#size].", err.Error())
		finder.AssertNumberOfCalls(t, "FindElement", 0)
		finder.AssertNumberOfCalls(t, "FindElements", 0)
	})

	t.Run("ByNameAndValue", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		el := new(mocks.MockElement)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body input[type=radio][name='size'][value='large']").
			Return(el, nil)

		got, err := r.ResolveForRadioSelection(ctx, "size", "large")
		require.NoError(t, err)
		assert.Same(t, el, got)
	})
}

func TestResolveForChecking(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name     string
		field    string
		value    []string
		selector string
	}{
		{name: "field only", field: "terms", selector: "body input[type=checkbox][name='terms']"},
		{name: "field and value", field: "tags", value: []string{"go"}, selector: "body input[type=checkbox][name='tags'][value='go']"},
		{name: "value only", value: []string{"go"}, selector: "body input[type=checkbox][value='go']"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r, finder := newResolver(t, "body")
			el := new(mocks.MockElement)
			finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, tc.selector).Return(el, nil)

			got, err := r.ResolveForChecking(ctx, tc.field, tc.value...)
			require.NoError(t, err)
			assert.Same(t, el, got)
		})
	}

	t.Run("NoFieldHasNoRawFallback", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body input[type=checkbox][value='x']").
			Return(nil, schemas.ErrNoSuchElement)

		_, err := r.ResolveForChecking(ctx, "", "x")
		assert.ErrorIs(t, err, schemas.ErrNoSuchElement)
		finder.AssertNumberOfCalls(t, "FindElement", 1)
	})
}

func TestResolveForAttachmentAndSelection(t *testing.T) {
	ctx := context.Background()
	r, finder := newResolver(t, "body")
	file, sel := new(mocks.MockElement), new(mocks.MockElement)
	finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body input[type=file][name='avatar']").Return(file, nil)
	finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body select[name='country']").Return(sel, nil)

	got, err := r.ResolveForAttachment(ctx, "avatar")
	require.NoError(t, err)
	assert.Same(t, file, got)

	got, err = r.ResolveForSelection(ctx, "country")
	require.NoError(t, err)
	assert.Same(t, sel, got)
}

func TestResolveSelectOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("FiltersByValue", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		sel := new(mocks.MockElement)
		nl, de, fr := new(mocks.MockElement), new(mocks.MockElement), new(mocks.MockElement)
		nl.On("Attribute", mock.Anything, "value").Return("nl", true, nil)
		de.On("Attribute", mock.Anything, "value").Return("de", true, nil)
		fr.On("Attribute", mock.Anything, "value").Return("fr", true, nil)
		sel.On("FindElements", mock.Anything, schemas.ByTagName, "option").
			Return([]schemas.Element{nl, de, fr}, nil)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body select[name='country']").Return(sel, nil)

		got, err := r.ResolveSelectOptions(ctx, "country", []string{"de", "fr", "be"})
		require.NoError(t, err)
		assert.Equal(t, []schemas.Element{de, fr}, got)
	})

	t.Run("EmptyValuesShortCircuit", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		got, err := r.ResolveSelectOptions(ctx, "country", nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		finder.AssertNumberOfCalls(t, "FindElement", 0)
	})
}

func TestResolveForButtonPress(t *testing.T) {
	ctx := context.Background()

	t.Run("NameMatchBeatsText", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		submit := new(mocks.MockElement)
		button := new(mocks.MockElement)
		button.On("Text", mock.Anything).Return("Save", nil)
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, "body input[type=submit][name='Save']").Return(submit, nil)
		finder.On("FindElements", mock.Anything, schemas.ByCSSSelector, "body button").Return([]schemas.Element{button}, nil)

		got, err := r.ResolveForButtonPress(ctx, "Save")
		require.NoError(t, err)
		assert.Same(t, submit, got)
		finder.AssertNotCalled(t, "FindElements", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SubmitValue", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, mock.Anything).Return(nil, schemas.ErrNoSuchElement)
		other, wanted := new(mocks.MockElement), new(mocks.MockElement)
		other.On("Attribute", mock.Anything, "value").Return("Cancel", true, nil)
		wanted.On("Attribute", mock.Anything, "value").Return("Register", true, nil)
		finder.On("FindElements", mock.Anything, schemas.ByCSSSelector, "body input[type=submit]").
			Return([]schemas.Element{other, wanted}, nil)

		got, err := r.ResolveForButtonPress(ctx, "Register")
		require.NoError(t, err)
		assert.Same(t, wanted, got)
	})

	t.Run("TextContains", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		finder.On("FindElement", mock.Anything, schemas.ByCSSSelector, mock.Anything).Return(nil, schemas.ErrNoSuchElement)
		finder.On("FindElements", mock.Anything, schemas.ByCSSSelector, "body input[type=submit]").Return([]schemas.Element{}, nil)
		button := new(mocks.MockElement)
		button.On("Text", mock.Anything).Return("Log in now", nil)
		finder.On("FindElements", mock.Anything, schemas.ByCSSSelector, "body button").Return([]schemas.Element{button}, nil)

		got, err := r.ResolveForButtonPress(ctx, "Log in")
		require.NoError(t, err)
		assert.Same(t, button, got)
	})

	t.Run("NothingMatches", func(t *testing.T) {
		r, finder := newResolver(t, "body")
		finder.On("FindElement", mock.Anything, mock.Anything, mock.Anything).Return(nil, schemas.ErrNoSuchElement)
		finder.On("FindElements", mock.Anything, mock.Anything, mock.Anything).Return([]schemas.Element{}, nil)

		_, err := r.ResolveForButtonPress(ctx, "#ghost")
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrInvalidArgument)
		assert.Equal(t, "Unable to locate button [#ghost].", err.Error())
	})
}
