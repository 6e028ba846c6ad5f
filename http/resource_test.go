package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posty/domain"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"", "..."},
		{"short", "short..."},
		{strings.Repeat("x", 50), strings.Repeat("x", 50) + "..."},
		{strings.Repeat("x", 51), strings.Repeat("x", 50) + "..."},
		{strings.Repeat("ü", 60), strings.Repeat("ü", 50) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, excerpt(tt.text))
	}
}

func TestDiffForHumans(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "1 second ago"},
		{30 * time.Second, "30 seconds ago"},
		{time.Minute, "1 minute ago"},
		{59 * time.Minute, "59 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{day, "1 day ago"},
		{6 * day, "6 days ago"},
		{7 * day, "1 week ago"},
		{29 * day, "4 weeks ago"},
		{30 * day, "1 month ago"},
		{364 * day, "12 months ago"},
		{365 * day, "1 year ago"},
		{800 * day, "2 years ago"},
		{-2 * time.Hour, "2 hours from now"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, diffForHumans(now.Add(-tt.ago), now), tt.ago.String())
	}
}

func TestNewPage(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "https://posty.test/v1/posts?page=3", nil)

	p := newPage(r, []int{1, 2}, 2, 12, 3, 5)
	assert.Equal(t, "https://posty.test/v1/posts?page=1", p.Links.First)
	assert.Equal(t, "https://posty.test/v1/posts?page=3", p.Links.Last)
	require.NotNil(t, p.Links.Prev)
	assert.Equal(t, "https://posty.test/v1/posts?page=2", *p.Links.Prev)
	assert.Nil(t, p.Links.Next)
	assert.Equal(t, 3, p.Meta.LastPage)
	require.NotNil(t, p.Meta.From)
	assert.Equal(t, 11, *p.Meta.From)
	assert.Equal(t, 12, *p.Meta.To)

	// Pages past the end are empty but keep their meta data.
	p = newPage(r, []int{}, 0, 0, 4, 5)
	assert.Equal(t, 1, p.Meta.LastPage)
	assert.Nil(t, p.Meta.From)
	assert.Nil(t, p.Meta.To)
	assert.Nil(t, p.Links.Next)
}

func TestPageParam(t *testing.T) {
	for query, want := range map[string]int{"": 1, "page=2": 2, "page=0": 1, "page=-3": 1, "page=x": 1} {
		r := httptest.NewRequest(http.MethodGet, "/v1/posts?"+query, nil)
		assert.Equal(t, want, pageParam(r), query)
	}
}

func TestRequestPathForwardedProto(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/users?page=2", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://example.com/v1/users", requestPath(r))
}

func TestNewUserResourceHidesCounts(t *testing.T) {
	res := newUserResource(domain.User{ID: 1, Name: "Jane", Email: "jane@posty.test"}, time.Now())
	assert.Nil(t, res.TotalPosts)
	assert.Nil(t, res.Posts)
}
