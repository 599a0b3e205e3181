package web

import (
	"log/slog"
	"net/http"
	"time"

	accountStore "carecal/internal/adapters/storage/account"
	"carecal/internal/application/listutil"
	"carecal/internal/application/orchestrators"
	"carecal/internal/domain/account"
)

// accountJSON is the public shape of an account; the password hash never leaves the server.
type accountJSON struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	FullName  string    `json:"fullName"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	Locked    bool      `json:"locked"`
}

func toAccountJSON(a account.Account) accountJSON {
	return accountJSON{
		ID:        a.ID,
		Email:     a.Email,
		Phone:     a.Phone,
		FullName:  a.FullName,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
		Locked:    a.LockedAt(timeNow()),
	}
}

// handleAccounts handles GET (list, ?role= and ?q= filters) and POST (create) for /accounts.
func handleAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case "GET":
		role := r.URL.Query().Get("role")
		if role != "" && role != account.RoleStaff && role != account.RoleVolunteer && role != account.RoleParticipant {
			http.Error(w, account.ErrInvalidRole.Error(), http.StatusBadRequest)
			return
		}
		filter := accountStore.ListFilter{Role: role, Search: r.URL.Query().Get("q")}
		total, err := stores.AccountStore.Count(ctx, filter)
		if err != nil {
			internalError(w, err)
			return
		}
		pp := listutil.ParsePageParams(r.URL.Query())
		page := listutil.NewPageInfo(pp.Page, pp.PerPage, total)
		filter.Limit, filter.Offset = page.PerPage, page.Offset()
		accounts, err := stores.AccountStore.List(ctx, filter)
		if err != nil {
			internalError(w, err)
			return
		}
		out := make([]accountJSON, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, toAccountJSON(a))
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": out, "page": page})

	case "POST":
		var body struct {
			Email    string `json:"email"`
			Phone    string `json:"phone"`
			FullName string `json:"fullName"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := strictDecode(r, &body); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		id, err := orchestrators.ExecuteCreateAccount(ctx, orchestrators.CreateAccountInput{
			Email:    body.Email,
			Phone:    body.Phone,
			FullName: body.FullName,
			Password: body.Password,
			Role:     body.Role,
		}, orchestrators.CreateAccountDeps{AccountStore: stores.AccountStore, Now: timeNow})
		if err != nil {
			writeError(w, err)
			return
		}
		acct, err := stores.AccountStore.GetByID(ctx, id)
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAccountJSON(acct))

	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleAccount handles DELETE /accounts/{id}. Open sessions of the account end with it.
func handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != "DELETE" {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if err := orchestrators.ExecuteDeleteAccount(r.Context(), orchestrators.DeleteAccountInput{
		Actor:     currentActor(r),
		AccountID: id,
	}, orchestrators.DeleteAccountDeps{AccountStore: stores.AccountStore}); err != nil {
		writeError(w, err)
		return
	}
	if n := sessions.DeleteAccount(id); n > 0 {
		slog.Info("auth_event", "event", "sessions_revoked", "account_id", id, "count", n)
	}
	w.WriteHeader(http.StatusNoContent)
}
