package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"posty/auth"
	"posty/crud"
	"posty/domain"
	"posty/errs"
)

const (
	registerTokenName = "myapptoken"
	loginTokenName    = "auth_token"
)

// registerAuthRoutes is a helper for registering all routes of the auth system.
func (s *Server) registerAuthRoutes(r *mux.Router) {
	r.HandleFunc("/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/logout", s.authMw.ApplyFn(s.handleLogout)).Methods("POST")
}

// handleRegister handles the route "POST /register".
// It creates a new user and issues the user's first access token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	// Parse the request body.
	in, err := readInput(w, r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Create the user. Validation happens inside the user service.
	user := domain.User{
		Name:     in["name"],
		Email:    in["email"],
		Password: in["password"],
	}
	if err := s.us.Create(r.Context(), &user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Issue a token for the new user.
	token, err := s.ts.Issue(r.Context(), user.ID, registerTokenName)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"user":  user,
		"token": token.Token,
	})
}

// handleLogin handles the route "POST /login".
// Depending on the token policy, a user who already holds a token gets none.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	// Parse and validate the request body.
	in, err := readInput(w, r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(in["email"]))
	var v errs.Validation
	if email == "" {
		v.Add("email", "The email field is required.")
	} else if !crud.ValidEmail(email) {
		v.Add("email", "The email field must be a valid email address.")
	}
	if in["password"] == "" {
		v.Add("password", "The password field is required.")
	}
	if err := v.Err(); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Check the credentials.
	user, err := s.us.Authenticate(r.Context(), email, in["password"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	response := map[string]interface{}{
		"user":    user.Name,
		"message": "Successfully Logged In",
	}

	// Only issue a token if the policy asks for one.
	if s.cfg.TokenPolicy != TokenPolicyAlways {
		count, err := s.ts.Count(r.Context(), user.ID)
		if err != nil {
			errs.ReturnError(w, r, err)
			return
		}
		if count > 0 {
			writeJSON(w, r, http.StatusOK, response)
			return
		}
	}
	token, err := s.ts.Issue(r.Context(), user.ID, loginTokenName)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	response["token"] = token.Token
	response["token_type"] = "Bearer Token"
	writeJSON(w, r, http.StatusOK, response)
}

// handleLogout handles the route "POST /logout".
// It revokes the token the request was authenticated with.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := auth.GetToken(r.Context())
	if token == nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EUNAUTHORIZED, "Unauthenticated."))
		return
	}
	if err := s.ts.Revoke(r.Context(), token.ID); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Succesfully Logged out"})
}
