package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/analytics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/tradeindex"
)

const (
	maxWindow       = 30 * 24 * time.Hour
	defaultLimit    = 50
	maxLimit        = 1000
	maxRequestBytes = 1 << 20
)

func handleGetAnalytics(svc AnalyticsService, timeout time.Duration, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := chain.ParseAddress(r.PathValue("address"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()
		window := svc.DefaultWindow()
		if raw := query.Get("window"); raw != "" {
			window, err = parseWindow(raw)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		bypass, err := parseBool(query.Get("bypass"))
		if err != nil {
			writeError(w, "invalid bypass parameter: must be a boolean", http.StatusBadRequest)
			return
		}
		refresh, err := parseBool(query.Get("refresh"))
		if err != nil {
			writeError(w, "invalid refresh parameter: must be a boolean", http.StatusBadRequest)
			return
		}

		ctx, cancel := withTimeout(r.Context(), timeout)
		defer cancel()

		result, err := svc.GetPriceAnalytics(ctx, token, window, analytics.GetOptions{Bypass: bypass, Refresh: refresh})
		if err != nil {
			status := statusForContextError(err)
			logger.Warn("analytics request failed", zap.String("token", chain.AddressKey(token)), zap.Error(err))
			writeError(w, "analytics computation did not complete", status)
			return
		}
		writeJSON(w, result, http.StatusOK)
	})
}

func handleInvalidate(svc AnalyticsService, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := chain.ParseAddress(r.PathValue("address"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.Invalidate(r.Context(), token); err != nil {
			logger.Error("cache invalidation failed", zap.String("token", chain.AddressKey(token)), zap.Error(err))
			writeError(w, "failed to invalidate cache", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleListTrades(indexer TradeIndexer, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := chain.ParseAddress(r.PathValue("address"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if limit < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if limit > maxLimit {
				writeError(w, "limit cannot exceed 1000", http.StatusBadRequest)
				return
			}
		}

		trades, err := indexer.ListTrades(r.Context(), token, limit)
		if err != nil {
			logger.Error("list trades failed", zap.String("token", chain.AddressKey(token)), zap.Error(err))
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{
			"trades": trades,
			"count":  len(trades),
		}, http.StatusOK)
	})
}

type indexTradeRequest struct {
	TxHash       string  `json:"tx_hash"`
	TokenAddress string  `json:"token_address"`
	EntityID     *string `json:"entity_id"`
}

func handleIndexTrade(indexer TradeIndexer, timeout time.Duration, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		var req indexTradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		txHash, err := chain.ParseTxHash(req.TxHash)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		token, err := chain.ParseAddress(req.TokenAddress)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.EntityID != nil && strings.TrimSpace(*req.EntityID) == "" {
			req.EntityID = nil
		}

		ctx, cancel := withTimeout(r.Context(), timeout)
		defer cancel()

		record, err := indexer.Index(ctx, txHash, token, req.EntityID)
		switch {
		case err == nil:
			writeJSON(w, record, http.StatusOK)
		case errors.Is(err, tradeindex.ErrReceiptNotFound):
			writeError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, tradeindex.ErrEventNotFound):
			writeError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			status := statusForContextError(err)
			logger.Error("index trade failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
			writeError(w, "failed to index trade", status)
		}
	})
}

func handleReady(checks []Check, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.String("check", check.Name), zap.Error(err))
				results[check.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[check.Name] = "ok"
		}
		writeJSON(w, results, status)
	})
}

// parseWindow accepts a Go duration ("24h") or a whole number of hours ("24").
func parseWindow(raw string) (time.Duration, error) {
	window, err := time.ParseDuration(raw)
	if err != nil {
		hours, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, errors.New("invalid window parameter: must be a duration (e.g. '24h') or hours")
		}
		window = time.Duration(hours) * time.Hour
	}
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	if window > maxWindow {
		return 0, errors.New("window cannot exceed 720h")
	}
	return window, nil
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func statusForContextError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
