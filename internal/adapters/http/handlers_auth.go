package web

import (
	"log/slog"
	"net/http"

	"carecal/internal/adapters/http/middleware"
	"carecal/internal/application/orchestrators"
)

// sessionResponse is returned by both login endpoints.
type sessionResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
}

// startSession issues a token for a verified login, sets the cookie and returns the JSON body.
func startSession(w http.ResponseWriter, result orchestrators.LoginResult) (sessionResponse, bool) {
	token, err := sessions.Create(result.AccountID, result.Email, result.Role)
	if err != nil {
		internalError(w, err)
		return sessionResponse{}, false
	}
	middleware.SetSessionCookie(w, token)
	return sessionResponse{
		Token:     token,
		AccountID: result.AccountID,
		FullName:  result.FullName,
		Role:      result.Role,
	}, true
}

// handleLogin handles GET (form) and POST (email and password) for /login.
// JSON clients get a bearer token; form posts get the cookie and a redirect.
func handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
			http.Redirect(w, r, "/calendar", http.StatusSeeOther)
			return
		}
		renderTemplate(w, r, "login.html", map[string]any{"Error": "", "Email": ""})

	case "POST":
		var input orchestrators.LoginInput
		asJSON := isJSONRequest(r)
		if asJSON {
			var body struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := strictDecode(r, &body); err != nil {
				http.Error(w, "invalid JSON", http.StatusBadRequest)
				return
			}
			input = orchestrators.LoginInput{Email: body.Email, Password: body.Password}
		} else {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "Invalid form submission", http.StatusBadRequest)
				return
			}
			input = orchestrators.LoginInput{Email: r.FormValue("Email"), Password: r.FormValue("Password")}
		}

		result, err := orchestrators.ExecuteLogin(r.Context(), input, orchestrators.LoginDeps{
			AccountStore: stores.AccountStore,
			Now:          timeNow,
		})
		if err != nil {
			if asJSON {
				writeError(w, err)
				return
			}
			renderTemplate(w, r, "login.html", map[string]any{"Error": err.Error(), "Email": input.Email})
			return
		}

		resp, ok := startSession(w, result)
		if !ok {
			return
		}
		if asJSON {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		http.Redirect(w, r, "/calendar", http.StatusSeeOther)

	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleLoginOTP handles POST /login-otp.
// {phone} requests a code; {phone, code} verifies it and starts a session.
func handleLoginOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := strictDecode(r, &body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	deps := orchestrators.OTPDeps{
		AccountStore: stores.AccountStore,
		OTPStore:     stores.OTPStore,
		Outbox:       stores.OutboxStore,
		GenerateID:   generateID,
		Now:          timeNow,
		LogCodes:     settings.LogOTPCodes,
	}

	if body.Code == "" {
		// The response is identical for known and unknown phones.
		if _, err := orchestrators.ExecuteRequestOTP(r.Context(), orchestrators.RequestOTPInput{Phone: body.Phone}, deps); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
		return
	}

	result, err := orchestrators.ExecuteVerifyOTP(r.Context(), orchestrators.VerifyOTPInput{Phone: body.Phone, Code: body.Code}, deps)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, ok := startSession(w, result)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogout handles POST /logout
func handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if token := middleware.TokenFromRequest(r); token != "" {
		sessions.Delete(token)
	}
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		slog.Info("auth_event", "event", "logout", "account_id", sess.AccountID)
	}

	middleware.ClearSessionCookie(w)
	if isHTMLRequest(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
