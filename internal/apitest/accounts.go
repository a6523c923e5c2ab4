package apitest

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/internal/rate"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	errDuplicate = errors.New(DetailDuplicate)
	errNotFound  = errors.New(DetailNotFound)
)

// accountStore keeps accounts in memory, ordered by id.
type accountStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*api.Account
}

func newAccountStore() *accountStore {
	return &accountStore{byID: map[int64]*api.Account{}}
}

func (st *accountStore) numberTaken(number string, except int64) bool {
	for id, a := range st.byID {
		if id != except && a.AccountNumber == number {
			return true
		}
	}
	return false
}

func (st *accountStore) create(in api.AccountCreate, userID int64) (api.Account, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.numberTaken(in.AccountNumber, 0) {
		return api.Account{}, errDuplicate
	}
	st.nextID++
	status := in.Status
	if status == "" {
		status = api.StatusPending
	}
	maxCopies := in.MaxCopies
	if maxCopies == 0 {
		maxCopies = 1
	}
	createdBy := userID
	acc := &api.Account{
		ID:              st.nextID,
		AccountNumber:   in.AccountNumber,
		AccountPassword: in.AccountPassword,
		Server:          in.Server,
		BuyerName:       in.BuyerName,
		BuyerEmail:      in.BuyerEmail,
		BuyerPhone:      in.BuyerPhone,
		BuyerNotes:      in.BuyerNotes,
		PurchaseDate:    in.PurchaseDate,
		ExpiryDate:      in.ExpiryDate,
		PurchasePrice:   in.PurchasePrice,
		Status:          status,
		MaxCopies:       maxCopies,
		MarginSize:      in.MarginSize,
		Phase1Target:    in.Phase1Target,
		Phase1Status:    in.Phase1Status,
		Phase2Target:    in.Phase2Target,
		Phase2Status:    in.Phase2Status,
		CreatedAt:       time.Now().UTC(),
		CreatedBy:       &createdBy,
	}
	st.byID[acc.ID] = acc
	return *acc, nil
}

func (st *accountStore) list(status api.AccountStatus, search string, skip, limit int) []api.Account {
	st.mu.Lock()
	defer st.mu.Unlock()
	search = strings.ToLower(search)
	out := make([]api.Account, 0, len(st.byID))
	for _, a := range st.byID {
		if status != "" && a.Status != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.BuyerName), search) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if skip >= len(out) {
		return []api.Account{}
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (st *accountStore) get(id int64) (api.Account, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.byID[id]
	if !ok {
		return api.Account{}, errNotFound
	}
	return *a, nil
}

func (st *accountStore) update(id int64, fn func(*api.Account) error) (api.Account, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.byID[id]
	if !ok {
		return api.Account{}, errNotFound
	}
	next := *a
	if err := fn(&next); err != nil {
		return api.Account{}, err
	}
	now := time.Now().UTC()
	next.UpdatedAt = &now
	*a = next
	return next, nil
}

func (st *accountStore) delete(id int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.byID[id]; !ok {
		return errNotFound
	}
	delete(st.byID, id)
	return nil
}

func (st *accountStore) stats(now time.Time) api.AdminStats {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out api.AdminStats
	var revenue float64
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, a := range st.byID {
		out.TotalAccounts++
		switch a.Status {
		case api.StatusPending:
			out.Pending++
		case api.StatusApproved:
			out.Approved++
		case api.StatusInCopy:
			out.InCopy++
		case api.StatusExpired:
			out.Expired++
		case api.StatusSuspended:
			out.Suspended++
		}
		if a.PurchasePrice != nil {
			revenue += a.PurchasePrice.Float64()
		}
		if !a.PurchaseDate.Time().Before(monthStart) {
			out.AccountsThisMonth++
		}
	}
	out.TotalRevenue = api.Decimal(strconv.FormatFloat(revenue, 'f', 2, 64))
	return out
}

func applyUpdate(a *api.Account, in api.AccountUpdate, legacy bool) {
	if in.AccountNumber != nil {
		a.AccountNumber = *in.AccountNumber
	}
	if in.AccountPassword != nil && legacy {
		a.AccountPassword = *in.AccountPassword
	}
	if in.Server != nil {
		a.Server = *in.Server
	}
	if in.BuyerName != nil {
		a.BuyerName = *in.BuyerName
	}
	if in.BuyerEmail != nil {
		a.BuyerEmail = in.BuyerEmail
	}
	if in.BuyerPhone != nil {
		a.BuyerPhone = in.BuyerPhone
	}
	if in.BuyerNotes != nil {
		a.BuyerNotes = in.BuyerNotes
	}
	if in.PurchaseDate != nil {
		a.PurchaseDate = *in.PurchaseDate
	}
	if in.ExpiryDate != nil {
		a.ExpiryDate = in.ExpiryDate
	}
	if in.PurchasePrice != nil {
		a.PurchasePrice = in.PurchasePrice
	}
	if in.Status != nil {
		a.Status = *in.Status
	}
	if in.CopyCount != nil {
		a.CopyCount = *in.CopyCount
	}
	if in.MaxCopies != nil {
		a.MaxCopies = *in.MaxCopies
	}
	if in.MarginSize != nil {
		a.MarginSize = in.MarginSize
	}
	if in.Phase1Target != nil {
		a.Phase1Target = in.Phase1Target
	}
	if in.Phase1Status != nil {
		a.Phase1Status = in.Phase1Status
	}
	if in.Phase2Target != nil {
		a.Phase2Target = in.Phase2Target
	}
	if in.Phase2Status != nil {
		a.Phase2Status = in.Phase2Status
	}
}

// present hides the stored password outside the legacy surface.
func present(a api.Account, legacy bool) api.Account {
	if !legacy {
		a.AccountPassword = ""
	}
	return a
}

func accountID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeDetail(w, http.StatusNotFound, DetailNotFound)
	case errors.Is(err, errDuplicate):
		writeDetail(w, http.StatusBadRequest, DetailDuplicate)
	default:
		writeDetail(w, http.StatusBadRequest, err.Error())
	}
}

func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

func (s *Server) mountAccounts(r chi.Router, legacy bool) {
	r.Get("/accounts", func(w http.ResponseWriter, r *http.Request) {
		skip, okSkip := queryInt(r, "skip", 0)
		limit, okLimit := queryInt(r, "limit", 100)
		if !okSkip || !okLimit || skip < 0 || limit < 1 || limit > api.MaxListLimit {
			writeDetail(w, http.StatusUnprocessableEntity, "parametros de paginacao invalidos")
			return
		}
		var status api.AccountStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, err := api.ParseAccountStatus(raw)
			if err != nil {
				writeDetail(w, http.StatusBadRequest, "Status invalido")
				return
			}
			status = parsed
		}
		out := s.accounts.list(status, r.URL.Query().Get("search"), skip, limit)
		for i := range out {
			out[i] = present(out[i], legacy)
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(r)
		if !ok {
			writeDetail(w, http.StatusNotFound, DetailNotFound)
			return
		}
		acc, err := s.accounts.get(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, present(acc, legacy))
	})

	r.Post("/accounts", func(w http.ResponseWriter, r *http.Request) {
		var in api.AccountCreate
		if err := decodeBody(r, &in); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := in.Validate(); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		acc, err := s.accounts.create(in, currentUser(r).ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, present(acc, legacy))
	})

	r.Put("/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(r)
		if !ok {
			writeDetail(w, http.StatusNotFound, DetailNotFound)
			return
		}
		var in api.AccountUpdate
		if err := decodeBody(r, &in); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := in.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, "Status invalido")
			return
		}
		acc, err := s.accounts.update(id, func(a *api.Account) error {
			if in.AccountNumber != nil && *in.AccountNumber != a.AccountNumber {
				if s.accounts.numberTaken(*in.AccountNumber, id) {
					return errDuplicate
				}
			}
			applyUpdate(a, in, legacy)
			return nil
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, present(acc, legacy))
	})

	r.Patch("/accounts/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(r)
		if !ok {
			writeDetail(w, http.StatusNotFound, DetailNotFound)
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		status, err := api.ParseAccountStatus(body.Status)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Status invalido")
			return
		}
		acc, err := s.accounts.update(id, func(a *api.Account) error {
			a.Status = status
			return nil
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, present(acc, legacy))
	})

	r.Delete("/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(r)
		if !ok {
			writeDetail(w, http.StatusNotFound, DetailNotFound)
			return
		}
		if err := s.accounts.delete(id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.accounts.stats(time.Now().UTC()))
	})
}

func (s *Server) revealPassword(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r)
	err := s.limiter.Allow(r.Context(), "reveal", strconv.FormatInt(admin.ID, 10), s.opts.RevealLimit)
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, DetailRateLimited)
		return
	case err != nil:
		writeDetail(w, http.StatusServiceUnavailable, "servico indisponivel")
		return
	}

	id, ok := accountID(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, DetailNotFound)
		return
	}
	var body struct {
		AdminPassword string `json:"admin_password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	acc, err := s.accounts.get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.mu.Lock()
	rec := s.users[admin.Username]
	s.mu.Unlock()
	if rec == nil || bcrypt.CompareHashAndPassword(rec.hash, []byte(body.AdminPassword)) != nil {
		writeDetail(w, http.StatusUnauthorized, DetailBadAdminPass)
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, api.PasswordReveal{
		AccountPassword:  acc.AccountPassword,
		RevealedAt:       time.Now().UTC(),
		ExpiresInSeconds: int(s.opts.RevealTTL / time.Second),
	})
}

func (s *Server) rotatePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, DetailNotFound)
		return
	}
	var body struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(body.NewPassword) < api.MinPasswordLength {
		writeDetail(w, http.StatusUnprocessableEntity, "new_password deve ter ao menos 8 caracteres")
		return
	}
	acc, err := s.accounts.update(id, func(a *api.Account) error {
		a.AccountPassword = body.NewPassword
		return nil
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, present(acc, false))
}

func (s *Server) publicStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.accounts.stats(time.Now().UTC()).Stats)
}
