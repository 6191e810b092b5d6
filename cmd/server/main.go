package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/config"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/events/kafka"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/events/noop"
	interfaces "github.com/sheikh-saqib/double-entry-transfer-engine/internal/interfaces"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/ledger"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/storage/memory"
	"github.com/sheikh-saqib/double-entry-transfer-engine/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	store, err := newStore(cfg)
	if err != nil {
		logger.Fatal("init store", zap.Error(err))
	}

	var publisher interfaces.EventPublisher = noop.NewPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, logger)
		defer kp.Close()
		publisher = kp
	}

	engine := ledger.NewLedger(store, ledger.WithPublisher(publisher))
	srv := &server{engine: engine, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /accounts", srv.openAccount)
	mux.HandleFunc("GET /accounts/{id}", srv.getAccount)
	mux.HandleFunc("GET /accounts/{id}/balance", srv.getBalance)
	mux.HandleFunc("GET /accounts/{id}/transactions", srv.getTransactions)
	mux.HandleFunc("POST /accounts/{id}/suspend", srv.suspendAccount)
	mux.HandleFunc("POST /accounts/{id}/reactivate", srv.reactivateAccount)
	mux.HandleFunc("POST /accounts/{id}/close", srv.closeAccount)
	mux.HandleFunc("POST /deposits", srv.deposit)
	mux.HandleFunc("POST /withdrawals", srv.withdraw)
	mux.HandleFunc("POST /card-charges", srv.cardCharge)
	mux.HandleFunc("POST /refunds", srv.refund)
	mux.HandleFunc("POST /transfers", srv.transfer)
	mux.HandleFunc("GET /transfers/{id}", srv.getTransfer)

	logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := httpSrv.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return logger
}

func newStore(cfg config.Config) (interfaces.LedgerStore, error) {
	if cfg.DatabaseURL == "" {
		return memory.NewMemoryLedgerStore(), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return postgres.NewPostgresLedgerStore(db), nil
}

type server struct {
	engine *ledger.Ledger
	logger *zap.Logger
}

type amountRequest struct {
	AccountID    string          `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Counterparty string          `json:"counterparty"`
}

func (s *server) openAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
		Name  string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	account, err := s.engine.OpenAccount(r.Context(), req.Owner, req.Name)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

func (s *server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (s *server) getBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	balance, err := s.engine.GetBalance(r.Context(), accountID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		AccountID string          `json:"account_id"`
		Balance   decimal.Decimal `json:"balance"`
	}{accountID, balance})
}

func (s *server) getTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.engine.GetTransactions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txs)
}

func (s *server) suspendAccount(w http.ResponseWriter, r *http.Request) {
	s.statusChange(w, r, s.engine.SuspendAccount)
}

func (s *server) reactivateAccount(w http.ResponseWriter, r *http.Request) {
	s.statusChange(w, r, s.engine.ReactivateAccount)
}

func (s *server) closeAccount(w http.ResponseWriter, r *http.Request) {
	s.statusChange(w, r, s.engine.CloseAccount)
}

func (s *server) statusChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, accountID string) error) {
	if err := op(r.Context(), r.PathValue("id")); err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := s.engine.Deposit(r.Context(), req.AccountID, req.Amount, req.Description)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := s.engine.Withdraw(r.Context(), req.AccountID, req.Amount, req.Description)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *server) cardCharge(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := s.engine.CardCharge(r.Context(), req.AccountID, req.Amount, req.Description)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *server) refund(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := s.engine.Refund(r.Context(), req.AccountID, req.Amount, req.Description, req.Counterparty)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *server) transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID    string          `json:"sender_id"`
		ReceiverID  string          `json:"receiver_id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	transfer, err := s.engine.Transfer(r.Context(), req.SenderID, req.ReceiverID, req.Amount, req.Description)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, transfer)
}

func (s *server) getTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.engine.GetTransfer(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transfer)
}

// writeEngineError maps the engine's closed error set onto HTTP status
// codes. The error kind alone decides the response.
func (s *server) writeEngineError(w http.ResponseWriter, err error) {
	var status int

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSameAccount):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrTransferNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrAccountClosed), errors.Is(err, ledger.ErrAccountNotEmpty):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
		s.logger.Error("storage unavailable", zap.Error(err))
	default:
		status = http.StatusInternalServerError
		s.logger.Error("unexpected error", zap.Error(err))
	}

	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
