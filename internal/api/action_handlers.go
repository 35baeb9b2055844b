package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leafsii/blinks-backend/internal/actions"
)

const maxBodyBytes = 64 << 10

// actionEndpoint binds one action path to its descriptor and resolver call.
type actionEndpoint struct {
	name       string
	path       string
	descriptor *actions.ActionGetResponse
	// param is the query parameter forwarded to build; empty for GET-only actions
	param string
	// notFoundStatus is the status for KindNotFound, which differs per action
	notFoundStatus int
	build          func(ctx context.Context, account solana.PublicKey, value string) (*actions.Result, error)
}

func (h *Handler) endpoints() []actionEndpoint {
	return []actionEndpoint{
		{
			name:           "deposit",
			path:           actions.PathDeposit,
			descriptor:     &h.descriptors.Deposit,
			param:          "amount",
			notFoundStatus: http.StatusNotFound,
			build:          h.resolver.Deposit,
		},
		{
			name:           "domain",
			path:           actions.PathDomain,
			descriptor:     &h.descriptors.Domain,
			param:          "handle",
			notFoundStatus: http.StatusUnprocessableEntity,
			build:          h.resolver.BuyDomain,
		},
		{
			name:           "nft",
			path:           actions.PathNFT,
			descriptor:     &h.descriptors.NFT,
			param:          "mint",
			notFoundStatus: http.StatusNotFound,
			build:          h.resolver.BuyNFTByMint,
		},
		{
			name:       "kamino",
			path:       actions.PathKamino,
			descriptor: &h.descriptors.Kamino,
		},
	}
}

// describe answers GET and OPTIONS with the action descriptor.
func (h *Handler) describe(ep actionEndpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, ep.descriptor)
	}
}

// execute answers POST by building the unsigned transaction for the caller.
func (h *Handler) execute(ep actionEndpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		var req actions.ActionPostRequest
		body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "Invalid request body", requestID)
			return
		}

		account, err := actions.ParseAccount(req.Account)
		if err != nil {
			h.writeActionError(w, ep, err, requestID)
			return
		}

		value := r.URL.Query().Get(ep.param)
		h.logger.Infow("Action request received",
			"request_id", requestID,
			"action", ep.name,
			"account", account,
			ep.param, value,
		)

		res, err := ep.build(r.Context(), account, value)
		if err != nil {
			h.writeActionError(w, ep, err, requestID)
			return
		}

		resp, err := res.Response()
		if err != nil {
			h.writeActionError(w, ep, err, requestID)
			return
		}

		if h.metrics != nil {
			h.metrics.RecordTransactionBuilt(r.Context(), ep.name)
		}
		h.logger.Infow("Action transaction built",
			"request_id", requestID,
			"action", ep.name,
			"account", account,
			"message", resp.Message,
		)
		h.writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) writeActionError(w http.ResponseWriter, ep actionEndpoint, err error, requestID string) {
	ae := actions.AsError(err)

	var status int
	switch ae.Kind {
	case actions.KindInvalidInput:
		status = http.StatusBadRequest
	case actions.KindNotFound:
		status = ep.notFoundStatus
	case actions.KindNotAvailableForSale:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	if ae.Kind == actions.KindUpstream {
		h.logger.Errorw("Action failed upstream",
			"request_id", requestID,
			"action", ep.name,
			"error", ae.Err,
		)
	}
	h.writeError(w, status, ae.Message, requestID)
}
