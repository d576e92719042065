package mimir

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/spf13/cast"
	"github.com/twitchtv/twirp"
)

func (s *Server) Handler() http.Handler {
	m := chi.NewMux()
	m.Use(middleware.Recoverer)
	m.Use(middleware.RealIP)
	m.Use(middleware.Logger)
	m.Use(middleware.Heartbeat("/hc"))
	m.Use(cors.AllowAll().Handler)

	m.Get("/addresses/{address}", s.encodeAddress)
	m.Get("/transactions", s.listFeed)

	m.Route("/chains/{network}", func(r chi.Router) {
		r.Get("/accounts/{address}/details", s.getDetails)
		r.Get("/accounts/{address}/graph", s.getGraph)
		r.Get("/accounts/{address}/transactions", s.listTransactions)
		r.Get("/accounts/{address}/multisig/{callHash}", s.getProgress)
		r.Post("/calls/resolve", s.resolveCall)
		r.Post("/calls/safety", s.classifyCall)
	})

	m.Group(func(r chi.Router) {
		r.Use(handleAuth(s.cfg.Issuer, []byte(s.cfg.Secret)))
		r.Get("/contacts", s.listContacts)
		r.Post("/contacts", s.addContact)
		r.Delete("/contacts/{id}", s.deleteContact)
	})

	return m
}

func renderJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	_ = json.NewEncoder(w).Encode(v)
}

func renderErr(w http.ResponseWriter, err error) {
	_ = twirp.WriteError(w, twirpError(err))
}

func twirpError(err error) error {
	var (
		te      twirp.Error
		addrErr *InvalidAddressError
		callErr *MalformedCallError
		cyclic  *CyclicGraphError
		resp    *ResponseError
	)

	switch {
	case errors.As(err, &te):
		return te
	case errors.As(err, &addrErr), errors.As(err, &callErr),
		errors.Is(err, ErrInvalidThreshold), errors.Is(err, ErrEmptyMembers),
		errors.Is(err, ErrInvalidCursor):
		return twirp.InvalidArgument.Error(err.Error())
	case errors.Is(err, ErrNotMultisig):
		return twirp.NotFound.Error(err.Error())
	case errors.As(err, &cyclic):
		return twirp.FailedPrecondition.Error(err.Error())
	case errors.As(err, &resp):
		return twirp.Unavailable.Error(err.Error())
	default:
		return err
	}
}

func pathAddress(r *http.Request) (Address, error) {
	return Decode(chi.URLParam(r, "address"))
}

func (s *Server) encodeAddress(w http.ResponseWriter, r *http.Request) {
	addr, format, err := DecodeSS58(chi.URLParam(r, "address"))
	if err != nil {
		renderErr(w, err)
		return
	}

	if q := r.URL.Query().Get("format"); q != "" {
		f, err := cast.ToUint16E(q)
		if err != nil {
			renderErr(w, twirp.InvalidArgumentError("format", "invalid"))
			return
		}

		format = f
	}

	renderJSON(w, map[string]any{
		"hex":     addr.Hex(),
		"address": addr.Encode(format),
		"format":  format,
		"evm":     addr.IsEVM(),
	})
}

func (s *Server) getDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := pathAddress(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	details, err := s.details.AccountDetails(ctx, chi.URLParam(r, "network"), addr)
	if err != nil {
		renderErr(w, err)
		return
	}

	if details == nil {
		renderErr(w, twirp.NotFoundError("account not found"))
		return
	}

	resp := map[string]any{"details": details}
	if asset := r.URL.Query().Get("asset"); asset != "" {
		resp["total"] = SumBalances(details.Balances, asset)
	}

	renderJSON(w, resp)
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	network := chi.URLParam(r, "network")
	addr, err := pathAddress(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	if cast.ToBool(r.URL.Query().Get("cached")) {
		if graph, err := FindGraph(s.db, network, addr); err != nil {
			renderErr(w, err)
			return
		} else if graph != nil {
			renderJSON(w, graph)
			return
		}
	}

	graph, err := s.builder.Build(ctx, network, addr)
	if err != nil {
		slog.Warn("build graph failed", slog.String("network", network), slog.Any("err", err))
		renderErr(w, err)
		return
	}

	job := &Job{
		CreatedAt: time.Now(),
		Network:   network,
		Address:   addr,
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		if err := saveGraph(txn, graph); err != nil {
			return err
		}

		return saveJob(txn, job, s.cfg.JobTTL)
	}); err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, graph)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	network := chi.URLParam(r, "network")
	addr, err := pathAddress(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	q := r.URL.Query()
	status, err := ParseStatusFilter(q.Get("status"))
	if err != nil {
		renderErr(w, twirp.InvalidArgumentError("status", err.Error()))
		return
	}

	page, err := s.store.ListTransactions(ctx, network, addr, TxQuery{
		Status: status,
		Limit:  cast.ToInt(q.Get("limit")),
		Cursor: q.Get("cursor"),
	})

	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, page)
}

func parseFilter(q map[string][]string) (Filter, error) {
	var (
		f   Filter
		err error
	)

	if v := q["status"]; len(v) > 0 {
		if f.Status, err = ParseStatusFilter(v[0]); err != nil {
			return f, twirp.InvalidArgumentError("status", err.Error())
		}
	}

	for _, v := range q["type"] {
		t, err := ParseTxType(v)
		if err != nil {
			return f, twirp.InvalidArgumentError("type", err.Error())
		}

		f.Types = append(f.Types, t)
	}

	for _, v := range q["address"] {
		addr, err := Decode(v)
		if err != nil {
			return f, twirp.InvalidArgumentError("address", err.Error())
		}

		f.Addresses = append(f.Addresses, addr)
	}

	if v := q["q"]; len(v) > 0 {
		f.Text = v[0]
	}

	return f, nil
}

func (s *Server) listFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var scopes []Scope
	for _, v := range q["scope"] {
		scope, err := ParseScope(v)
		if err != nil {
			renderErr(w, twirp.InvalidArgumentError("scope", err.Error()))
			return
		}

		scopes = append(scopes, scope)
	}

	if len(scopes) == 0 {
		renderErr(w, twirp.RequiredArgumentError("scope"))
		return
	}

	filter, err := parseFilter(q)
	if err != nil {
		renderErr(w, err)
		return
	}

	opts := GroupOptions{}
	if tz := q.Get("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			renderErr(w, twirp.InvalidArgumentError("tz", err.Error()))
			return
		}

		opts.Location = loc
	}

	sources := s.collector.Collect(ctx, scopes, TxQuery{
		Status: filter.Status,
		Limit:  cast.ToInt(q.Get("limit")),
	}, nil)

	renderJSON(w, Aggregate(sources, filter, opts))
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	network := chi.URLParam(r, "network")
	addr, err := pathAddress(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	callHash := chi.URLParam(r, "callHash")
	if h := strings.TrimPrefix(callHash, "0x"); len(h) != 64 || !govalidator.IsHexadecimal(h) {
		renderErr(w, twirp.InvalidArgumentError("callHash", "invalid"))
		return
	}

	progress, err := s.tracker.Progress(ctx, network, addr, callHash)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, progress)
}

type callBody struct {
	Signer  string `json:"signer"`
	Call    string `json:"call"`
	Decoded *Call  `json:"decoded"`
}

func (s *Server) decodeCall(r *http.Request) (*Call, error) {
	var body callBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, twirp.InvalidArgument.Error(err.Error())
	}

	if body.Decoded != nil {
		if body.Decoded.Data == "" {
			body.Decoded.Data = body.Call
		}

		return body.Decoded, nil
	}

	if body.Call == "" {
		return nil, twirp.RequiredArgumentError("call")
	}

	call, err := s.chain.DecodeCall(r.Context(), chi.URLParam(r, "network"), body.Call)
	if err != nil {
		return nil, err
	}

	if call.Data == "" {
		call.Data = body.Call
	}

	return call, nil
}

func (s *Server) resolveCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body callBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgument.Error(err.Error()))
		return
	}

	signer, err := Decode(body.Signer)
	if err != nil {
		renderErr(w, err)
		return
	}

	var res *Resolution
	switch {
	case body.Decoded != nil:
		res, err = Resolve(signer, body.Decoded)
	case body.Call != "":
		res, err = s.resolver.ResolveHex(ctx, chi.URLParam(r, "network"), signer, body.Call)
	default:
		err = twirp.RequiredArgumentError("call")
	}

	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, res)
}

func (s *Server) classifyCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	call, err := s.decodeCall(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	level, err := s.classifier.Classify(ctx, chi.URLParam(r, "network"), call)
	if err != nil {
		slog.Warn("classify call failed", slog.String("call", call.Name()), slog.Any("err", err))
		renderErr(w, twirp.Unavailable.Error(err.Error()))
		return
	}

	renderJSON(w, map[string]any{
		"level":        level,
		"auto_confirm": level.AutoConfirm(),
	})
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	contacts, err := listContacts(txn, user.ID)
	if err != nil {
		slog.Error("listContacts", "error", err)
		renderErr(w, err)
		return
	}

	renderJSON(w, contacts)
}

func (s *Server) addContact(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	var body struct {
		Name    string `json:"name"`
		Network string `json:"network"`
		Address string `json:"address"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgument.Error(err.Error()))
		return
	}

	contact, err := NewContact(user, body.Name, body.Network, body.Address)
	if err != nil {
		renderErr(w, twirp.InvalidArgument.Error(err.Error()))
		return
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return saveContact(txn, contact)
	}); err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, contact)
}

func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, twirp.InvalidArgumentError("id", "invalid"))
		return
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	contact, err := findContact(txn, user.ID, id)
	if err != nil {
		renderErr(w, err)
		return
	}

	if contact == nil {
		renderErr(w, twirp.NotFoundError("contact not found"))
		return
	}

	if err := deleteContact(txn, user.ID, id); err != nil {
		renderErr(w, err)
		return
	}

	if err := txn.Commit(); err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, contact)
}
