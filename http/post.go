package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"posty/auth"
	"posty/domain"
	"posty/errs"
)

const (
	postsPerPage  = 50
	searchPerPage = 5
)

// registerPostRoutes is a helper for registering all Post routes.
func (s *Server) registerPostRoutes(r *mux.Router) {
	r.HandleFunc("/posts", s.handleListPosts).Methods("GET")
	r.HandleFunc("/posts", s.handleCreatePost).Methods("POST")
	r.HandleFunc("/posts/search/{term}", s.handleSearchPosts).Methods("GET")
	r.HandleFunc("/posts/{id:[0-9]+}", s.handleShowPost).Methods("GET")
	r.HandleFunc("/posts/{id:[0-9]+}", s.handleUpdatePost).Methods("PUT", "PATCH")
	r.HandleFunc("/posts/{id:[0-9]+}", s.handleDeletePost).Methods("DELETE")

	// Like a post, or unlike it if it's liked already.
	r.HandleFunc("/posts/like/{id:[0-9]+}", s.handleLikePost).Methods("POST")
}

// handleListPosts handles the route "GET /v1/posts".
// It returns one page of posts, optionally only those of one user.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	filter := domain.PostFilter{CountLikes: true}
	if raw, ok := r.URL.Query()["filter[user_id]"]; ok && len(raw) > 0 && raw[0] != "" {
		userID, err := strconv.Atoi(raw[0])
		if err != nil {
			errs.ReturnError(w, r, errs.Invalid("filter[user_id]", "The filter[user_id] must be an integer."))
			return
		}
		filter.UserID = &userID
	}
	s.writePostPage(w, r, filter, postsPerPage)
}

// handleSearchPosts handles the route "GET /v1/posts/search/:term".
func (s *Server) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	s.writePostPage(w, r, domain.PostFilter{Search: mux.Vars(r)["term"]}, searchPerPage)
}

// writePostPage lists the requested page of posts matching the filter.
func (s *Server) writePostPage(w http.ResponseWriter, r *http.Request, filter domain.PostFilter, perPage int) {
	page := pageParam(r)
	filter.Offset = (page - 1) * perPage
	filter.Limit = perPage

	posts, total, err := s.ps.List(r.Context(), filter)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	data := newPostResources(posts, s.now())
	writeJSON(w, r, http.StatusOK, newPage(r, data, len(data), total, page, perPage))
}

// handleCreatePost handles the route "POST /v1/posts".
// It reads the post's text and an optional image from a multipart form.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	// Parse the request body.
	in, err := readInput(w, r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	user := auth.GetUser(r.Context())
	post := domain.Post{
		UserID: user.ID,
		Text:   in["post"],
	}

	// Validate and store the image first, so the post can reference its path.
	if fh := formFile(r, "image"); fh != nil {
		file, err := fh.Open()
		if err != nil {
			errs.ReturnError(w, r, err)
			return
		}
		defer file.Close()

		img := &domain.Image{File: file, Filename: fh.Filename}
		if err := s.is.Create(img); err != nil {
			errs.ReturnError(w, r, err)
			return
		}
		post.Image = &img.Path
	}

	// Create the post. Remove the stored image again if that fails.
	if err := s.ps.Create(r.Context(), &post); err != nil {
		if post.Image != nil {
			if rmErr := s.is.Delete(*post.Image); rmErr != nil {
				errs.LogError(r, rmErr)
			}
		}
		errs.ReturnError(w, r, err)
		return
	}
	if post.User == nil {
		post.User = user
	}

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"data":    newPostResource(post, s.now()),
		"message": "Post Succesfully Created",
	})
}

// handleShowPost handles the route "GET /v1/posts/:id".
func (s *Server) handleShowPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "Post Not Found"))
		return
	}

	post, err := s.ps.ByID(r.Context(), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"data": newPostResource(*post, s.now()),
	})
}

// handleUpdatePost handles the route "PUT /v1/posts/:id".
// Only the owner of a post may change it.
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	// Parse post ID from the url.
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "Post Not Found"))
		return
	}

	// Parse the request body.
	in, err := readInput(w, r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Update the post. The post service checks its existence and ownership.
	user := auth.GetUser(r.Context())
	post, err := s.ps.Update(r.Context(), id, in["post"], user.ID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"data":    newPostResource(*post, s.now()),
		"message": "Post Succesfully Updated",
	})
}

// handleDeletePost handles the route "DELETE /v1/posts/:id".
// Only the owner of a post may delete it. The post's image is removed along with it.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	// Parse post ID from the url.
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "Post Not Found"))
		return
	}

	// Delete the post. The post service checks its existence and ownership.
	user := auth.GetUser(r.Context())
	post, err := s.ps.Delete(r.Context(), id, user.ID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Remove the image file. The post is gone already, so a failure is only logged.
	if post.Image != nil {
		if err := s.is.Delete(*post.Image); err != nil {
			errs.LogError(r, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
