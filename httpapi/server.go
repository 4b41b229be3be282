// Package httpapi exposes the identity, credential, and ledger operations as
// a JSON REST surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/credchain/credchain/credential"
	"github.com/credchain/credchain/identity"
	"github.com/credchain/credchain/ledger"
	"github.com/credchain/credchain/model"
	"github.com/credchain/credchain/storage"
)

type Server struct {
	log         *slog.Logger
	registry    *identity.Registry
	credentials *credential.Service
	chain       *ledger.Ledger
	archive     *storage.ChainArchive
}

// New assembles the HTTP surface. archive may be nil for memory-only chains.
func New(log *slog.Logger, registry *identity.Registry, credentials *credential.Service, chain *ledger.Ledger, archive *storage.ChainArchive) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:         log,
		registry:    registry,
		credentials: credentials,
		chain:       chain,
		archive:     archive,
	}
}

// Handler builds the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/identity", s.handleCreateIdentity)
		r.Get("/identity/{did}", s.handleGetIdentity)

		r.Post("/credential/issue", s.handleIssue)
		r.Get("/credential/{id}", s.handleGetCredential)
		r.Get("/credential/{id}/verify", s.handleVerify)
		r.Get("/credential/{id}/document", s.handleDocument)
		r.Get("/credential/recipient/{did}", s.handleListByRecipient)
		r.Get("/credential/issuer/{did}", s.handleListByIssuer)

		r.Post("/chain/mine", s.handleMine)
		r.Get("/chain", s.handleChain)
		r.Get("/chain/status", s.handleStatus)
	})

	return cors.AllowAll().Handler(r)
}

type createIdentityRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, model.NewError(model.ErrValidation, "invalid JSON body"))
		return
	}
	created, err := s.registry.Create(req.Name, req.Email, req.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The private key appears in this response and nowhere else.
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	record, err := s.registry.Get(chi.URLParam(r, "did"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

type issueRequest struct {
	IssuerDID     string            `json:"issuerDid"`
	RecipientDID  string            `json:"recipientDid"`
	Type          string            `json:"type"`
	Payload       map[string]string `json:"payload"`
	PrivateKeyPEM string            `json:"privateKeyPem"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, model.NewError(model.ErrValidation, "invalid JSON body"))
		return
	}
	cred, err := s.credentials.Issue(req.IssuerDID, req.RecipientDID, req.Type, req.Payload, req.PrivateKeyPEM)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cred)
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credentials.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cred)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.credentials.Verify(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credentials.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw, err := credential.DocumentBytes(cred)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleListByRecipient(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.credentials.ListByRecipient(chi.URLParam(r, "did")))
}

func (s *Server) handleListByIssuer(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.credentials.ListByIssuer(chi.URLParam(r, "did")))
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	block := s.chain.Mine()
	if block == nil {
		s.writeError(w, model.NewError(model.ErrValidation, "no pending transactions to mine"))
		return
	}
	if s.archive != nil {
		if err := s.archiveBlock(block); err != nil {
			// The block is sealed either way; archiving is best-effort.
			s.log.Error("archive append failed", "blockIndex", block.Index, "err", err)
		}
	}
	s.writeJSON(w, http.StatusCreated, block)
}

func (s *Server) archiveBlock(block *ledger.Block) error {
	snapshot, err := json.Marshal(block)
	if err != nil {
		return err
	}
	_, err = s.archive.Append(snapshot)
	return err
}

func (s *Server) handleChain(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chain.Chain())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chain.Status())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encoding failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var coded *model.CodedError
	if !errors.As(err, &coded) {
		coded = model.WrapError(model.ErrInternal, "internal error", err)
	}
	status := http.StatusInternalServerError
	switch coded.Code {
	case model.ErrValidation:
		status = http.StatusBadRequest
	case model.ErrNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "code", coded.Code, "err", err)
	}
	s.writeJSON(w, status, coded)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started),
		)
	})
}
