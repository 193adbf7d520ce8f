package store

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/fbibank/backend/internal/models"
)

// Memory is an in-process Store. Writers are serialized and work on a private copy of
// the state that is published atomically on commit, so readers only ever see committed
// snapshots.
type Memory struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

type memState struct {
	customers      map[string]models.Customer
	emails         map[string]string
	accounts       map[string]models.Account
	accountNumbers map[string]string
	accountIDs     []string
	transactions   []models.Transaction
	loans          map[string]models.Loan
	loanIDs        []string
	payments       []models.LoanPayment
	schemes        map[string]models.LoanScheme
	schemeNames    map[string]string
	schemeIDs      []string
	seq            int64
}

func newMemState() *memState {
	return &memState{
		customers:      map[string]models.Customer{},
		emails:         map[string]string{},
		accounts:       map[string]models.Account{},
		accountNumbers: map[string]string{},
		loans:          map[string]models.Loan{},
		schemes:        map[string]models.LoanScheme{},
		schemeNames:    map[string]string{},
	}
}

// clone copies the maps; append-only slices are capped so the next append reallocates
// instead of writing into the published backing array.
func (s *memState) clone() *memState {
	return &memState{
		customers:      maps.Clone(s.customers),
		emails:         maps.Clone(s.emails),
		accounts:       maps.Clone(s.accounts),
		accountNumbers: maps.Clone(s.accountNumbers),
		accountIDs:     s.accountIDs[:len(s.accountIDs):len(s.accountIDs)],
		transactions:   s.transactions[:len(s.transactions):len(s.transactions)],
		loans:          maps.Clone(s.loans),
		loanIDs:        s.loanIDs[:len(s.loanIDs):len(s.loanIDs)],
		payments:       s.payments[:len(s.payments):len(s.payments)],
		schemes:        maps.Clone(s.schemes),
		schemeNames:    maps.Clone(s.schemeNames),
		schemeIDs:      s.schemeIDs[:len(s.schemeIDs):len(s.schemeIDs)],
		seq:            s.seq,
	}
}

func (m *Memory) snapshot() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	work := m.snapshot().clone()
	if err := fn(&memTx{memState: work}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return m.snapshot().GetAccount(ctx, id)
}

func (m *Memory) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return m.snapshot().GetAccountByNumber(ctx, number)
}

func (m *Memory) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return m.snapshot().ListAccounts(ctx)
}

func (m *Memory) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	return m.snapshot().GetCustomer(ctx, id)
}

func (m *Memory) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	return m.snapshot().ListTransactions(ctx, accountID)
}

func (m *Memory) ListTransactionsByCorrelation(ctx context.Context, correlationID string) ([]models.Transaction, error) {
	return m.snapshot().ListTransactionsByCorrelation(ctx, correlationID)
}

func (m *Memory) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	return m.snapshot().GetLoan(ctx, id)
}

func (m *Memory) ListLoans(ctx context.Context, filter LoanFilter) ([]models.Loan, error) {
	return m.snapshot().ListLoans(ctx, filter)
}

func (m *Memory) ListLoanPayments(ctx context.Context, loanID string) ([]models.LoanPayment, error) {
	return m.snapshot().ListLoanPayments(ctx, loanID)
}

func (m *Memory) GetScheme(ctx context.Context, id string) (*models.LoanScheme, error) {
	return m.snapshot().GetScheme(ctx, id)
}

func (m *Memory) ListSchemes(ctx context.Context, status models.SchemeStatus) ([]models.LoanScheme, error) {
	return m.snapshot().ListSchemes(ctx, status)
}

// Reads on a state value. Every result is a copy.

func (s *memState) GetAccount(_ context.Context, id string) (*models.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *memState) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	id, ok := s.accountNumbers[number]
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *memState) ListAccounts(_ context.Context) ([]models.Account, error) {
	out := make([]models.Account, 0, len(s.accountIDs))
	for _, id := range s.accountIDs {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

func (s *memState) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *memState) ListTransactions(_ context.Context, accountID string) ([]models.Transaction, error) {
	out := []models.Transaction{}
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].AccountID == accountID {
			out = append(out, s.transactions[i])
		}
	}
	return out, nil
}

func (s *memState) ListTransactionsByCorrelation(_ context.Context, correlationID string) ([]models.Transaction, error) {
	out := []models.Transaction{}
	if correlationID == "" {
		return out, nil
	}
	for _, t := range s.transactions {
		if t.CorrelationID == correlationID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memState) GetLoan(_ context.Context, id string) (*models.Loan, error) {
	l, ok := s.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *memState) ListLoans(_ context.Context, filter LoanFilter) ([]models.Loan, error) {
	out := []models.Loan{}
	for i := len(s.loanIDs) - 1; i >= 0; i-- {
		l := s.loans[s.loanIDs[i]]
		if filter.Matches(&l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memState) ListLoanPayments(_ context.Context, loanID string) ([]models.LoanPayment, error) {
	out := []models.LoanPayment{}
	for _, p := range s.payments {
		if p.LoanID == loanID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memState) GetScheme(_ context.Context, id string) (*models.LoanScheme, error) {
	sc, ok := s.schemes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sc, nil
}

func (s *memState) ListSchemes(_ context.Context, status models.SchemeStatus) ([]models.LoanScheme, error) {
	out := []models.LoanScheme{}
	for _, id := range s.schemeIDs {
		sc := s.schemes[id]
		if status == "" || sc.Status == status {
			out = append(out, sc)
		}
	}
	return out, nil
}

// memTx writes into the private copy owned by one WithTx call.
type memTx struct {
	*memState
}

func (t *memTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) LockLoan(ctx context.Context, id string) (*models.Loan, error) {
	return t.GetLoan(ctx, id)
}

func (t *memTx) LockScheme(ctx context.Context, id string) (*models.LoanScheme, error) {
	return t.GetScheme(ctx, id)
}

func (t *memTx) ShareScheme(ctx context.Context, id string) (*models.LoanScheme, error) {
	return t.GetScheme(ctx, id)
}

func (t *memTx) InsertCustomer(_ context.Context, c *models.Customer) error {
	email := strings.ToLower(c.Email)
	if _, ok := t.emails[email]; ok {
		return ErrDuplicate
	}
	if _, ok := t.customers[c.ID]; ok {
		return ErrDuplicate
	}
	t.customers[c.ID] = *c
	t.emails[email] = c.ID
	return nil
}

func (t *memTx) InsertAccount(_ context.Context, a *models.Account) error {
	if _, ok := t.accountNumbers[a.AccountNumber]; ok {
		return ErrDuplicate
	}
	if _, ok := t.accounts[a.ID]; ok {
		return ErrDuplicate
	}
	if a.Version == 0 {
		a.Version = 1
	}
	t.accounts[a.ID] = *a
	t.accountNumbers[a.AccountNumber] = a.ID
	t.accountIDs = append(t.accountIDs, a.ID)
	return nil
}

func (t *memTx) AccountNumberExists(_ context.Context, number string) (bool, error) {
	_, ok := t.accountNumbers[number]
	return ok, nil
}

func (t *memTx) UpdateAccount(_ context.Context, a *models.Account) error {
	cur, ok := t.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != a.Version {
		return ErrConflict
	}
	cur.Balance = a.Balance
	cur.Status = a.Status
	cur.UpdatedAt = a.UpdatedAt
	cur.Version++
	t.accounts[a.ID] = cur
	a.Version = cur.Version
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *models.Transaction) error {
	if _, ok := t.accounts[tr.AccountID]; !ok {
		return ErrNotFound
	}
	t.seq++
	tr.Seq = t.seq
	t.transactions = append(t.transactions, *tr)
	return nil
}

func (t *memTx) InsertLoan(_ context.Context, l *models.Loan) error {
	if _, ok := t.loans[l.ID]; ok {
		return ErrDuplicate
	}
	t.loans[l.ID] = *l
	t.loanIDs = append(t.loanIDs, l.ID)
	return nil
}

func (t *memTx) UpdateLoan(_ context.Context, l *models.Loan) error {
	if _, ok := t.loans[l.ID]; !ok {
		return ErrNotFound
	}
	t.loans[l.ID] = *l
	return nil
}

func (t *memTx) InsertLoanPayment(_ context.Context, p *models.LoanPayment) error {
	if _, ok := t.loans[p.LoanID]; !ok {
		return ErrNotFound
	}
	t.payments = append(t.payments, *p)
	return nil
}

func (t *memTx) InsertScheme(_ context.Context, sc *models.LoanScheme) error {
	name := strings.ToLower(sc.Name)
	if _, ok := t.schemeNames[name]; ok {
		return ErrDuplicate
	}
	t.schemes[sc.ID] = *sc
	t.schemeNames[name] = sc.ID
	t.schemeIDs = append(t.schemeIDs, sc.ID)
	return nil
}

func (t *memTx) UpdateScheme(_ context.Context, sc *models.LoanScheme) error {
	if _, ok := t.schemes[sc.ID]; !ok {
		return ErrNotFound
	}
	t.schemes[sc.ID] = *sc
	return nil
}
