package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"posty/domain"
	"posty/errs"
)

// excerptLength is the number of characters of a post shown in a resource.
const excerptLength = 50

// postResource is the public representation of a Post.
type postResource struct {
	PostID     int           `json:"post_id"`
	Post       string        `json:"post"`
	Image      *string       `json:"image"`
	Created    string        `json:"created"`
	User       *userResource `json:"user,omitempty"`
	LikesCount *int          `json:"likes_count,omitempty"`
}

// userResource is the public representation of a User.
type userResource struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	TotalPosts *int            `json:"total_posts,omitempty"`
	Posts      *[]postResource `json:"posts,omitempty"`
}

func newPostResource(p domain.Post, now time.Time) postResource {
	res := postResource{
		PostID:     p.ID,
		Post:       excerpt(p.Text),
		Image:      p.Image,
		Created:    diffForHumans(p.CreatedAt, now),
		LikesCount: p.LikesCount,
	}
	if p.User != nil {
		u := newUserResource(*p.User, now)
		res.User = &u
	}
	return res
}

func newPostResources(posts []domain.Post, now time.Time) []postResource {
	res := make([]postResource, 0, len(posts))
	for _, p := range posts {
		res = append(res, newPostResource(p, now))
	}
	return res
}

func newUserResource(u domain.User, now time.Time) userResource {
	res := userResource{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		TotalPosts: u.PostsCount,
	}
	if u.Posts != nil {
		posts := newPostResources(u.Posts, now)
		res.Posts = &posts
	}
	return res
}

// excerpt returns the first characters of a post followed by an ellipsis.
// The ellipsis is appended even to posts that are not cut.
func excerpt(text string) string {
	if utf8.RuneCountInString(text) > excerptLength {
		text = string([]rune(text)[:excerptLength])
	}
	return text + "..."
}

// diffForHumans describes the time elapsed between t and now, e.g. "3 hours ago".
func diffForHumans(t, now time.Time) string {
	d := now.Sub(t)
	suffix := "ago"
	if d < 0 {
		d = -d
		suffix = "from now"
	}

	var n int64
	var unit string
	days := int64(d / (24 * time.Hour))
	switch {
	case d < time.Minute:
		n, unit = int64(d/time.Second), "second"
	case d < time.Hour:
		n, unit = int64(d/time.Minute), "minute"
	case d < 24*time.Hour:
		n, unit = int64(d/time.Hour), "hour"
	case days < 7:
		n, unit = days, "day"
	case days < 30:
		n, unit = days/7, "week"
	case days < 365:
		n, unit = days/30, "month"
	default:
		n, unit = days/365, "year"
	}
	if n < 1 {
		n = 1
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s %s", n, unit, suffix)
}

// pageLinks and pageMeta describe a paginated collection.
type pageLinks struct {
	First string  `json:"first"`
	Last  string  `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

type pageMeta struct {
	CurrentPage int    `json:"current_page"`
	From        *int   `json:"from"`
	To          *int   `json:"to"`
	LastPage    int    `json:"last_page"`
	PerPage     int    `json:"per_page"`
	Total       int64  `json:"total"`
	Path        string `json:"path"`
}

type pageResource struct {
	Data  interface{} `json:"data"`
	Links pageLinks   `json:"links"`
	Meta  pageMeta    `json:"meta"`
}

// pageParam reads the requested page. Anything but a positive number means page 1.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// newPage wraps one page of a collection with its links and meta data.
func newPage(r *http.Request, data interface{}, count int, total int64, page, perPage int) pageResource {
	path := requestPath(r)
	pageURL := func(n int) string {
		return path + "?page=" + strconv.Itoa(n)
	}

	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}
	res := pageResource{
		Data: data,
		Links: pageLinks{
			First: pageURL(1),
			Last:  pageURL(lastPage),
		},
		Meta: pageMeta{
			CurrentPage: page,
			LastPage:    lastPage,
			PerPage:     perPage,
			Total:       total,
			Path:        path,
		},
	}
	if page > 1 {
		prev := pageURL(page - 1)
		res.Links.Prev = &prev
	}
	if page < lastPage {
		next := pageURL(page + 1)
		res.Links.Next = &next
	}
	if count > 0 {
		from := (page-1)*perPage + 1
		to := from + count - 1
		res.Meta.From, res.Meta.To = &from, &to
	}
	return res
}

// requestPath returns the absolute URL of the request without its query.
func requestPath(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}

// writeJSON writes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs.LogError(r, err)
	}
}
