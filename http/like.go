package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"posty/auth"
	"posty/errs"
	"posty/metrics"
)

// handleLikePost handles the route "POST /v1/posts/like/:id".
// It likes the post for the authed user, or unlikes it if it's liked already.
// A new like notifies the post's owner asynchronously.
func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	// Parse the post ID from the url.
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "Post Not Found"))
		return
	}

	// Toggle the like. Anything but a missing post is reported as a generic
	// server error; ReturnError keeps the cause in the logs.
	liked, err := s.ls.Toggle(r.Context(), id, auth.GetUser(r.Context()))
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	metrics.RecordLikeToggle(liked)

	message := "Post Unliked"
	if liked {
		message = "Post Liked"
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"message": message,
		"liked":   liked,
	})
}
