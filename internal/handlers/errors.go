package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/viemarket/storefront/internal/cart"
	"github.com/viemarket/storefront/internal/chat"
	"github.com/viemarket/storefront/internal/platform/httpx"
	"github.com/viemarket/storefront/internal/platform/requestctx"
	"github.com/viemarket/storefront/internal/upstream"
)

// writeDomainError maps session and upstream errors onto the gateway's JSON
// error envelope. Marketplace rejections pass through with their own code and
// status; timeouts get their own code so clients can offer a retry.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var apiErr *upstream.APIError
	var sendErr *chat.SendFailedError
	if errors.As(err, &sendErr) {
		err = sendErr.Err
	}

	switch {
	case errors.Is(err, cart.ErrUnauthenticated), errors.Is(err, chat.ErrUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "sign in to continue", http.StatusUnauthorized))
	case errors.Is(err, cart.ErrApplyInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("apply_in_flight", "a voucher is already being applied for this scope", http.StatusConflict))
	case errors.Is(err, cart.ErrVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher code not found", http.StatusNotFound))
	case errors.Is(err, cart.ErrVoucherNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_eligible", "voucher is not eligible for this order", http.StatusUnprocessableEntity))
	case errors.Is(err, chat.ErrNoConversation):
		httpx.WriteError(ctx, w, httpx.NewError("no_conversation", "open a conversation first", http.StatusConflict))
	case errors.Is(err, chat.ErrEmptyMessage):
		httpx.WriteError(ctx, w, httpx.NewError("empty_message", "message needs text or an image", http.StatusUnprocessableEntity))
	case errors.Is(err, chat.ErrAttachmentTooLarge),
		errors.Is(err, chat.ErrAttachmentNotImage),
		errors.Is(err, chat.ErrAttachmentEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_attachment", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, chat.ErrTimedOut), errors.Is(err, upstream.ErrTimeout):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_timeout", "the marketplace did not respond in time, please try again", http.StatusGatewayTimeout))
	case errors.As(err, &apiErr):
		httpx.WriteError(ctx, w, httpx.NewError(apiErr.Code, apiErr.Message, apiErr.Status))
	default:
		requestctx.Logger(ctx).Error("upstream request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", "marketplace request failed", http.StatusBadGateway))
	}
}
