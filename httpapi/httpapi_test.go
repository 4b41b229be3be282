package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/credchain/credchain/credential"
	"github.com/credchain/credchain/httpapi"
	"github.com/credchain/credchain/identity"
	"github.com/credchain/credchain/keys"
	"github.com/credchain/credchain/ledger"
	"github.com/credchain/credchain/model"
	"github.com/credchain/credchain/storage"
	"github.com/credchain/credchain/storage/localfs"
)

func newTestServer(t *testing.T, archive *storage.ChainArchive) *httptest.Server {
	t.Helper()
	registry := identity.NewRegistry(keys.AlgEd25519)
	chain, err := ledger.New(ledger.Config{Difficulty: 1})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	service, err := credential.NewService(registry, chain, "sha256")
	if err != nil {
		t.Fatalf("credential.NewService: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(httpapi.New(log, registry, service, chain, archive).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func createIdentity(t *testing.T, base, name, email string) model.CreatedIdentity {
	t.Helper()
	var created model.CreatedIdentity
	status := postJSON(t, base+"/api/identity", map[string]string{
		"name":  name,
		"email": email,
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create identity status = %d, want %d", status, http.StatusCreated)
	}
	return created
}

func TestCredentialLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	issuer := createIdentity(t, srv.URL, "University", "registrar@university.example")
	recipient := createIdentity(t, srv.URL, "Student", "student@university.example")
	if issuer.PrivateKeyPEM == "" {
		t.Fatal("create identity response is missing the private key")
	}

	var fetched model.Identity
	if status := getJSON(t, srv.URL+"/api/identity/"+issuer.Identifier, &fetched); status != http.StatusOK {
		t.Fatalf("get identity status = %d", status)
	}
	if fetched.DisplayName != "University" {
		t.Fatalf("DisplayName = %q, want %q", fetched.DisplayName, "University")
	}

	var cred model.Credential
	status := postJSON(t, srv.URL+"/api/credential/issue", map[string]any{
		"issuerDid":     issuer.Identifier,
		"recipientDid":  recipient.Identifier,
		"type":          "degree",
		"payload":       map[string]string{"school": "X"},
		"privateKeyPem": issuer.PrivateKeyPEM,
	}, &cred)
	if status != http.StatusCreated {
		t.Fatalf("issue status = %d, want %d", status, http.StatusCreated)
	}
	if cred.CredentialID == "" || cred.Signature == "" || cred.CID == "" {
		t.Fatalf("issued credential is incomplete: %+v", cred)
	}

	var before model.VerificationResult
	if status := getJSON(t, srv.URL+"/api/credential/"+cred.CredentialID+"/verify", &before); status != http.StatusOK {
		t.Fatalf("verify status = %d", status)
	}
	if !before.Checks.HashMatches || !before.Checks.SignatureValid {
		t.Fatalf("pre-mine checks = %+v, want hash and signature valid", before.Checks)
	}
	if before.Checks.OnChain || before.Valid || before.BlockIndex != -1 {
		t.Fatalf("pre-mine result = %+v, want off-chain with blockIndex -1", before)
	}

	var block ledger.Block
	if status := postJSON(t, srv.URL+"/api/chain/mine", nil, &block); status != http.StatusCreated {
		t.Fatalf("mine status = %d, want %d", status, http.StatusCreated)
	}
	if block.Index != 1 {
		t.Fatalf("mined block index = %d, want 1", block.Index)
	}

	var chain []ledger.Block
	if status := getJSON(t, srv.URL+"/api/chain", &chain); status != http.StatusOK {
		t.Fatalf("chain status = %d", status)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}

	var after model.VerificationResult
	getJSON(t, srv.URL+"/api/credential/"+cred.CredentialID+"/verify", &after)
	if !after.Valid || after.BlockIndex != 1 {
		t.Fatalf("post-mine result = %+v, want valid at blockIndex 1", after)
	}

	var chainStatus model.ChainStatus
	getJSON(t, srv.URL+"/api/chain/status", &chainStatus)
	if chainStatus.Length != 2 || chainStatus.PendingTransactions != 0 || !chainStatus.Valid {
		t.Fatalf("chain status = %+v", chainStatus)
	}

	var byRecipient []model.Credential
	getJSON(t, srv.URL+"/api/credential/recipient/"+recipient.Identifier, &byRecipient)
	if len(byRecipient) != 1 || byRecipient[0].CredentialID != cred.CredentialID {
		t.Fatalf("credentials by recipient = %+v", byRecipient)
	}
}

func TestDocumentEndpointServesCanonicalText(t *testing.T) {
	srv := newTestServer(t, nil)
	issuer := createIdentity(t, srv.URL, "University", "registrar@university.example")
	recipient := createIdentity(t, srv.URL, "Student", "student@university.example")

	var cred model.Credential
	postJSON(t, srv.URL+"/api/credential/issue", map[string]any{
		"issuerDid":     issuer.Identifier,
		"recipientDid":  recipient.Identifier,
		"type":          "degree",
		"payload":       map[string]string{"school": "X"},
		"privateKeyPem": issuer.PrivateKeyPEM,
	}, &cred)

	resp, err := http.Get(srv.URL + "/api/credential/" + cred.CredentialID + "/document")
	if err != nil {
		t.Fatalf("GET document: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("document status = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(string(raw), credential.Preamble) {
		t.Fatalf("document does not start with preamble: %q", raw[:40])
	}
	checks, err := credential.VerifyDocument(raw, issuer.PublicKeyPEM)
	if err != nil {
		t.Fatalf("VerifyDocument: %v", err)
	}
	if !checks.HashMatches || !checks.SignatureValid {
		t.Fatalf("document checks = %+v", checks)
	}
}

func TestMineArchivesSealedBlocks(t *testing.T) {
	dir := t.TempDir()
	cas, err := localfs.New(dir)
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	archive, err := storage.NewChainArchive(cas, dir+"/HEAD")
	if err != nil {
		t.Fatalf("NewChainArchive: %v", err)
	}
	srv := newTestServer(t, archive)

	issuer := createIdentity(t, srv.URL, "University", "registrar@university.example")
	recipient := createIdentity(t, srv.URL, "Student", "student@university.example")
	postJSON(t, srv.URL+"/api/credential/issue", map[string]any{
		"issuerDid":     issuer.Identifier,
		"recipientDid":  recipient.Identifier,
		"type":          "degree",
		"payload":       map[string]string{"school": "X"},
		"privateKeyPem": issuer.PrivateKeyPEM,
	}, nil)

	var block ledger.Block
	if status := postJSON(t, srv.URL+"/api/chain/mine", nil, &block); status != http.StatusCreated {
		t.Fatalf("mine status = %d", status)
	}

	snapshots, err := archive.Replay()
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("archived snapshots = %d, want 1", len(snapshots))
	}
	var archived ledger.Block
	if err := json.Unmarshal(snapshots[0], &archived); err != nil {
		t.Fatalf("unmarshal archived block: %v", err)
	}
	if archived.Hash != block.Hash {
		t.Fatalf("archived hash = %s, want %s", archived.Hash, block.Hash)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)

	var coded model.CodedError
	if status := getJSON(t, srv.URL+"/api/identity/did:credchain:0000000000000000", &coded); status != http.StatusNotFound {
		t.Fatalf("unknown identity status = %d, want %d", status, http.StatusNotFound)
	}
	if coded.Code != model.ErrNotFound {
		t.Fatalf("code = %s, want %s", coded.Code, model.ErrNotFound)
	}

	coded = model.CodedError{}
	if status := postJSON(t, srv.URL+"/api/identity", map[string]string{"name": "NoMail"}, &coded); status != http.StatusBadRequest {
		t.Fatalf("invalid identity status = %d, want %d", status, http.StatusBadRequest)
	}
	if coded.Code != model.ErrValidation {
		t.Fatalf("code = %s, want %s", coded.Code, model.ErrValidation)
	}

	coded = model.CodedError{}
	if status := postJSON(t, srv.URL+"/api/chain/mine", nil, &coded); status != http.StatusBadRequest {
		t.Fatalf("empty mine status = %d, want %d", status, http.StatusBadRequest)
	}

	resp, err := http.Post(srv.URL+"/api/credential/issue", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatalf("POST broken body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("broken body status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
