package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"posty/auth"
	"posty/domain"
	"posty/errs"
)

const usersPerPage = 5

// registerUserRoutes is a helper for registering all User routes.
func (s *Server) registerUserRoutes(r *mux.Router) {
	r.HandleFunc("/user", s.handleCurrentUser).Methods("GET")
	r.HandleFunc("/users", s.handleListUsers).Methods("GET")
	r.HandleFunc("/users/{id:[0-9]+}", s.handleShowUser).Methods("GET")
}

// handleCurrentUser handles the route "GET /v1/user".
// It returns the authed user.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, auth.GetUser(r.Context()))
}

// handleListUsers handles the route "GET /v1/users".
// It returns one page of users, each with the number of their posts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	users, total, err := s.us.List(r.Context(), domain.UserFilter{
		Sort:   r.URL.Query().Get("sort"),
		Offset: (page - 1) * usersPerPage,
		Limit:  usersPerPage,
	})
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	now := s.now()
	data := make([]userResource, 0, len(users))
	for _, u := range users {
		data = append(data, newUserResource(u, now))
	}
	writeJSON(w, r, http.StatusOK, newPage(r, data, len(data), total, page, usersPerPage))
}

// handleShowUser handles the route "GET /v1/users/:id".
// It returns the user along with all of their posts.
func (s *Server) handleShowUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "User Not Found"))
		return
	}

	user, err := s.us.ByIDWithPosts(r.Context(), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"data": newUserResource(*user, s.now()),
	})
}
