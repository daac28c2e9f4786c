// Package reconcile merges guest-held shopping state into the account state
// after a login. The server is the merge authority; this package's job is
// submitting complete, deduplicated batches and clearing the guest buffer
// only once the server has confirmed them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/StorefrontGo/internal/api"
	"github.com/utafrali/StorefrontGo/internal/guest"
)

// Reconciler runs the guest-to-account merge. It is invoked once per
// anonymous-to-authenticated login transition and never on session restore.
type Reconciler struct {
	buffer   *guest.Buffer
	cart     *api.CartService
	wishlist *api.WishlistService
	logger   *slog.Logger
}

func New(buffer *guest.Buffer, cart *api.CartService, wishlist *api.WishlistService, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		buffer:   buffer,
		cart:     cart,
		wishlist: wishlist,
		logger:   logger,
	}
}

// MergeOnLogin submits the buffered guest cart and wishlist to the backend's
// merge endpoints. Each feed is handled independently: its buffer is cleared
// only after the server confirmed that feed's merge, so a failed or
// interrupted merge leaves the guest state intact for a retry on the next
// login. Repeating a confirmed merge is impossible because the confirmed
// feed's buffer is already empty.
//
// A non-nil error means at least one feed did not merge. The login itself
// has already succeeded; callers surface the error as a warning, never as a
// login failure.
func (r *Reconciler) MergeOnLogin(ctx context.Context) error {
	var errs []error

	if err := r.mergeCart(ctx); err != nil {
		r.logger.WarnContext(ctx, "guest cart merge failed, buffer retained",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("merge guest cart: %w", err))
	}

	if err := r.mergeWishlist(ctx); err != nil {
		r.logger.WarnContext(ctx, "guest wishlist merge failed, buffer retained",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("merge guest wishlist: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	// Both feeds are confirmed empty: the guest identity has nothing left
	// to name and is retired.
	if err := r.buffer.Discard(ctx); err != nil {
		r.logger.WarnContext(ctx, "guest identity discard failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("discard guest identity: %w", err)
	}

	r.logger.InfoContext(ctx, "guest state reconciled")
	return nil
}

func (r *Reconciler) mergeCart(ctx context.Context) error {
	lines, err := r.buffer.Lines(ctx)
	if err != nil {
		return fmt.Errorf("read guest cart: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	if _, err := r.cart.Merge(ctx, lines); err != nil {
		return err
	}

	// Confirmed by the server: only now is it safe to drop the buffer.
	if err := r.buffer.ClearCart(ctx); err != nil {
		return fmt.Errorf("clear guest cart after merge: %w", err)
	}

	r.logger.InfoContext(ctx, "guest cart merged", slog.Int("lines", len(lines)))
	return nil
}

func (r *Reconciler) mergeWishlist(ctx context.Context) error {
	products, err := r.buffer.WishlistProducts(ctx)
	if err != nil {
		return fmt.Errorf("read guest wishlist: %w", err)
	}
	if len(products) == 0 {
		return nil
	}

	if _, err := r.wishlist.Merge(ctx, products); err != nil {
		return err
	}

	if err := r.buffer.ClearWishlist(ctx); err != nil {
		return fmt.Errorf("clear guest wishlist after merge: %w", err)
	}

	r.logger.InfoContext(ctx, "guest wishlist merged", slog.Int("products", len(products)))
	return nil
}
