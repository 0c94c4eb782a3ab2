package ledger

import (
	"context"
	"encoding/json"
	"time"

	"racestay-engine/pkg/db/option"
	"racestay-engine/pkg/db/pagination"
	"racestay-engine/pkg/errutil"
	"racestay-engine/pkg/event"
	"racestay-engine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// genesisHash anchors the first entry of every user's chain.
const genesisHash = "GENESIS"

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	emitter event.Emitter

	transactions repository.Repository[Transaction]
	balances     repository.Repository[Balance]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Emitter event.Emitter `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	emitter := p.Emitter
	if emitter == nil {
		emitter = event.Nop{}
	}

	return &Service{
		db:      p.DB,
		node:    p.Node,
		emitter: emitter,

		transactions: repository.ProvideStore[Transaction](p.DB),
		balances:     repository.ProvideStore[Balance](p.DB),
	}
}

// RecordParams describes one points movement. ReferenceID is the
// at-most-once scope key: a second record with the same kind and
// reference is rejected, which is what makes retried calls safe.
type RecordParams struct {
	UserID      string
	Amount      int64
	Kind        Kind
	ReferenceID string
	BookingID   string
	Description string
	Metadata    map[string]string
}

// GetBalance returns the materialized balance; a user with no
// transactions has balance zero.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.balances.FindOne(ctx, &Balance{UserID: userID})
	if err != nil {
		s.log(ctx).Error("failed to query balance", zap.String("user_id", userID), zap.Error(err))
		return 0, errutil.Internal("failed to query balance", err)
	}

	if balance == nil {
		return 0, nil
	}

	return balance.Balance, nil
}

// Record appends one entry in its own database transaction and publishes
// the balance change.
func (s *Service) Record(ctx context.Context, p RecordParams) (*Transaction, error) {
	var (
		entry      *Transaction
		newBalance int64
	)

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, newBalance, err = s.RecordInTx(ctx, tx, p)
		return err
	}); err != nil {
		return nil, err
	}

	s.emitter.BalanceChanged(ctx, event.BalanceChanged{
		UserID:     p.UserID,
		Delta:      p.Amount,
		NewBalance: newBalance,
		Kind:       string(p.Kind),
	})

	return entry, nil
}

// RecordInTx appends one entry as part of the caller's transaction, so a
// booking-status change and its ledger entry commit or fail together.
// The balance row is locked for the duration: the insufficient-funds
// check and the insert are one atomic unit and concurrent debits
// serialize on the row.
func (s *Service) RecordInTx(ctx context.Context, tx *gorm.DB, p RecordParams) (*Transaction, int64, error) {
	if !p.Kind.Valid() {
		return nil, 0, errutil.BadRequest("unsupported transaction kind", nil)
	}
	if p.Amount == 0 {
		return nil, 0, errutil.BadRequest("amount must be non-zero", nil)
	}
	if p.ReferenceID == "" {
		return nil, 0, errutil.BadRequest("reference_id is required", nil)
	}

	transactions := s.transactions.WithTrx(tx)
	balances := s.balances.WithTrx(tx)

	if exist, err := transactions.FindOne(ctx, &Transaction{Kind: p.Kind, ReferenceID: p.ReferenceID}); err != nil {
		return nil, 0, errutil.Internal("failed to check reference", err)
	} else if exist != nil {
		return nil, 0, ErrDuplicateReference{Kind: p.Kind, ReferenceID: p.ReferenceID}
	}

	balance, err := balances.FindOne(ctx, &Balance{UserID: p.UserID}, option.WithLockingUpdate())
	if err != nil {
		return nil, 0, errutil.Internal("failed to query balance", err)
	}

	var current int64
	if balance != nil {
		current = balance.Balance
	}

	newBalance := current + p.Amount
	if p.Amount < 0 && newBalance < 0 && !p.Kind.AllowsNegativeBalance() {
		return nil, 0, ErrInsufficientFunds{UserID: p.UserID, Shortfall: -newBalance}
	}

	lastEntry, err := transactions.FindOne(ctx, &Transaction{UserID: p.UserID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return nil, 0, errutil.Internal("failed to query last entry", err)
	}

	previousHash := genesisHash
	if lastEntry != nil {
		previousHash = lastEntry.Hash
	}

	code, err := GenerateTransactionCode()
	if err != nil {
		return nil, 0, errutil.Internal("failed to generate transaction code", err)
	}

	var metaBytes []byte
	if len(p.Metadata) > 0 {
		metaBytes, _ = json.Marshal(p.Metadata)
	}

	entry := NewTransaction(TransactionParams{
		ID:              s.node.Generate().String(),
		UserID:          p.UserID,
		Amount:          p.Amount,
		Kind:            p.Kind,
		ReferenceID:     p.ReferenceID,
		BookingID:       p.BookingID,
		TransactionCode: code,
		Description:     p.Description,
		PreviousHash:    previousHash,
		Metadata:        datatypes.JSON(metaBytes),
	})
	entry.CreatedAt = time.Now()
	entry.Hash = entry.GenerateHash()

	if err := transactions.Create(ctx, entry); err != nil {
		return nil, 0, errutil.Internal("failed to append ledger entry", err)
	}

	if balance == nil {
		now := time.Now()
		if err := balances.Create(ctx, &Balance{
			ID:        s.node.Generate().String(),
			UserID:    p.UserID,
			Balance:   newBalance,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return nil, 0, errutil.Internal("failed to create balance", err)
		}
	} else {
		if err := balances.Update(ctx, balance.ID, map[string]any{
			"balance":    newBalance,
			"updated_at": time.Now(),
		}); err != nil {
			return nil, 0, errutil.Internal("failed to update balance", err)
		}
	}

	return entry, newBalance, nil
}

// HasTransaction reports whether an entry with the given scope already
// exists. An empty userID matches any user; this is the guard the reward
// dispatcher uses for at-most-once awards.
func (s *Service) HasTransaction(ctx context.Context, userID string, kind Kind, referenceID string) (bool, error) {
	count, err := s.transactions.Count(ctx, &Transaction{
		UserID:      userID,
		Kind:        kind,
		ReferenceID: referenceID,
	})
	if err != nil {
		return false, errutil.Internal("failed to check transaction", err)
	}

	return count > 0, nil
}

// History returns one page of the user's transactions, newest first.
// The returned PageInfo carries the cursor for the next page.
func (s *Service) History(ctx context.Context, userID string, p pagination.Pagination) ([]*Transaction, *pagination.PageInfo, error) {
	if p.Limit <= 0 {
		p.Limit = defaultHistoryLimit
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
		// Fetch one extra row to learn whether a next page exists.
		option.ApplyPagination(pagination.Pagination{Limit: p.Limit + 1}),
	}

	if p.Cursor != "" {
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "id",
			Operator: option.LT,
			Value:    cursor.ID,
		}))
	}

	entries, err := s.transactions.Find(ctx, &Transaction{UserID: userID}, opts...)
	if err != nil {
		s.log(ctx).Error("failed to list transactions", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, errutil.Internal("failed to list transactions", err)
	}

	entries, page, err := pagination.BuildPage(entries, p.Limit, func(t *Transaction) string { return t.ID })
	if err != nil {
		return nil, nil, errutil.Internal("failed to build page cursor", err)
	}

	return entries, page, nil
}

// VerifyChain refolds the user's entries and checks every hash link.
func (s *Service) VerifyChain(ctx context.Context, userID string) (bool, error) {
	entries, err := s.entriesAscending(ctx, userID)
	if err != nil {
		return false, err
	}

	lastHash := genesisHash
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			return false, nil
		}
		lastHash = entry.Hash
	}

	return true, nil
}

// BalanceAudit compares the transaction fold with the materialized row.
type BalanceAudit struct {
	UserID    string `json:"user_id"`
	LedgerSum int64  `json:"ledger_sum"`
	Cached    int64  `json:"cached"`
	InSync    bool   `json:"in_sync"`
}

// AuditBalance proves (or disproves) conservation for one account: the
// cached balance must equal the fold of all transactions.
func (s *Service) AuditBalance(ctx context.Context, userID string) (*BalanceAudit, error) {
	entries, err := s.entriesAscending(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}

	cached, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &BalanceAudit{
		UserID:    userID,
		LedgerSum: sum,
		Cached:    cached,
		InSync:    sum == cached,
	}, nil
}

// RebuildBalance recomputes the materialized row from the transaction
// fold, repairing drift found by AuditBalance.
func (s *Service) RebuildBalance(ctx context.Context, userID string) (int64, error) {
	var sum int64
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		entries, err := s.transactions.WithTrx(tx).Find(ctx, &Transaction{UserID: userID},
			option.WithSortBy(option.QuerySortBy{
				SortBy:  "id",
				OrderBy: "asc",
				Allow:   map[string]bool{"id": true},
			}),
		)
		if err != nil {
			return errutil.Internal("failed to list entries", err)
		}

		sum = 0
		for _, entry := range entries {
			sum += entry.Amount
		}

		balances := s.balances.WithTrx(tx)
		balance, err := balances.FindOne(ctx, &Balance{UserID: userID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to query balance", err)
		}

		now := time.Now()
		if balance == nil {
			return balances.Create(ctx, &Balance{
				ID:        s.node.Generate().String(),
				UserID:    userID,
				Balance:   sum,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		return balances.Update(ctx, balance.ID, map[string]any{
			"balance":    sum,
			"updated_at": now,
		})
	}); err != nil {
		return 0, err
	}

	s.log(ctx).Info("rebuilt balance", zap.String("user_id", userID), zap.Int64("balance", sum))

	return sum, nil
}

func (s *Service) entriesAscending(ctx context.Context, userID string) ([]*Transaction, error) {
	entries, err := s.transactions.Find(ctx, &Transaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "asc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		s.log(ctx).Error("failed to list entries", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to list entries", err)
	}

	return entries, nil
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}
